// Package harvest owns the per-run scrape loop: it walks the roster one
// student at a time, appends parsed rows to the run's ResultTable, and
// records skipped students. There is deliberately no concurrency here —
// the portal gets one lookup at a time.
package harvest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/portal"
	"github.com/resulthound/resulthound/webhook"
)

// Harvester executes runs against a Fetcher.
type Harvester struct {
	fetcher portal.Fetcher

	// Delay is the pause between consecutive lookups.
	Delay time.Duration

	// Timeout, when positive, bounds each student's lookup. The fetcher
	// applies its own configured deadline on top; the shorter one wins.
	Timeout time.Duration

	// WebhookURL, when set, receives run.completed / run.partial /
	// run.failed events signed with WebhookSecret.
	WebhookURL    string
	WebhookSecret string
}

// New creates a Harvester driving the given fetcher.
func New(fetcher portal.Fetcher, delay time.Duration) *Harvester {
	return &Harvester{fetcher: fetcher, Delay: delay}
}

// Execute processes every query of the run in roster order and moves the
// run to a terminal status. A single student's failure is recorded and
// skipped; only context cancellation stops the loop early, and even then
// the rows gathered so far survive for export.
func (h *Harvester) Execute(ctx context.Context, run *Run, queries []models.StudentQuery) {
	delay := h.Delay

	for i, query := range queries {
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		// Re-checked after the delay: cancellation while waiting must not
		// burn a lookup on a dead context.
		if ctx.Err() != nil {
			slog.Warn("run canceled mid-batch",
				"run", run.ID,
				"processed", i,
				"total", len(queries),
			)
			break
		}

		lookupCtx := ctx
		var lookupCancel context.CancelFunc
		if h.Timeout > 0 {
			lookupCtx, lookupCancel = context.WithTimeout(ctx, h.Timeout)
		}
		result, err := h.fetcher.Fetch(lookupCtx, query)
		if lookupCancel != nil {
			lookupCancel()
		}
		if err != nil {
			run.recordFailure(failureFor(query, err))
			slog.Warn("student lookup failed, skipping",
				"run", run.ID,
				"register_number", query.RegisterNumber,
				"error", err,
			)
			continue
		}

		run.appendRows(result.Rows)
		slog.Info("student lookup succeeded",
			"run", run.ID,
			"register_number", query.RegisterNumber,
			"rows", len(result.Rows),
		)
	}

	status := run.finish()
	slog.Info("run finished",
		"run", run.ID,
		"status", status,
		"rows", run.Table.Len(),
		"failures", len(run.failures),
	)

	if h.WebhookURL != "" {
		completed, total, rows, failed := run.progress()
		webhook.DeliverAsync(h.WebhookURL, h.WebhookSecret, &webhook.Event{
			Type:      "run." + status,
			RunID:     run.ID,
			Timestamp: time.Now().Unix(),
			Data: map[string]any{
				"completed": completed,
				"total":     total,
				"rows":      rows,
				"failures":  failed,
			},
		})
	}
}

// failureFor turns a fetch error into the run's failure record. When the
// portal served a page we could not use, a markdown snapshot of that page
// is kept for offline diagnosis.
func failureFor(query models.StudentQuery, err error) models.FetchFailure {
	failure := models.FetchFailure{
		RegisterNumber: query.RegisterNumber,
		DateOfBirth:    query.DateOfBirth,
		Code:           models.ErrCodeFetchFailed,
		Reason:         err.Error(),
	}

	var harvestErr *models.HarvestError
	if errors.As(err, &harvestErr) {
		failure.Code = harvestErr.Code
		failure.Reason = harvestErr.Message
	}

	var pageErr *portal.PageError
	if errors.As(err, &pageErr) && pageErr.RawHTML != "" {
		if snapshot, convErr := htmltomarkdown.ConvertString(pageErr.RawHTML); convErr == nil {
			failure.Snapshot = snapshot
		}
	}

	return failure
}
