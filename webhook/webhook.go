// Package webhook notifies an external endpoint when a harvest run reaches a
// terminal status. Delivery is fire-and-forget from the run loop's point of
// view: a dead endpoint must never stall or fail a run.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// signatureHeader carries the HMAC-SHA256 of the request body, hex encoded
// with a "sha256=" prefix, so receivers can authenticate the event.
const signatureHeader = "X-Resulthound-Signature"

// retrySchedule is the wait before each redelivery attempt. The first entry
// is zero: the initial send happens immediately, while the run loop moves on.
var retrySchedule = []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}

// client is shared across deliveries; run completions are rare enough that
// one pooled client covers them all.
var client = &http.Client{Timeout: 10 * time.Second}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string      `json:"type"` // "run.completed", "run.partial", "run.failed"
	RunID     string      `json:"run_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Deliver sends one event synchronously. The body is signed when secret is
// non-empty; a response of 400 or above counts as a failed delivery.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Resulthound-Webhook/1.0")
	if secret != "" {
		req.Header.Set(signatureHeader, sign(body, secret))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync walks the retry schedule in a background goroutine, stopping
// at the first successful delivery. Exhausting the schedule is logged and
// dropped; the run itself already finished, so there is nothing to fail.
func DeliverAsync(url, secret string, event *Event) {
	go func() {
		for attempt, wait := range retrySchedule {
			time.Sleep(wait)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := Deliver(ctx, url, secret, event)
			cancel()

			if err == nil {
				slog.Info("run webhook delivered",
					"run", event.RunID,
					"event", event.Type,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("run webhook attempt failed",
				"run", event.RunID,
				"event", event.Type,
				"attempt", attempt+1,
				"remaining", len(retrySchedule)-attempt-1,
				"error", err,
			)
		}
		slog.Error("run webhook dropped after final retry",
			"run", event.RunID,
			"event", event.Type,
			"url", url,
		)
	}()
}

// sign computes the body's HMAC-SHA256 in the header's wire format.
func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
