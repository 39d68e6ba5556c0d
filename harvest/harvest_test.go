package harvest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/portal"
)

// stubFetcher returns canned results keyed by register number.
type stubFetcher struct {
	results map[string]*portal.LookupResult
	errs    map[string]error
	calls   []string
}

func (s *stubFetcher) Fetch(_ context.Context, query models.StudentQuery) (*portal.LookupResult, error) {
	s.calls = append(s.calls, query.RegisterNumber)
	if err, ok := s.errs[query.RegisterNumber]; ok {
		return nil, err
	}
	if result, ok := s.results[query.RegisterNumber]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("unexpected register number %s", query.RegisterNumber)
}

func lookupResult(regno string, subjects ...string) *portal.LookupResult {
	rows := make([]models.ResultRow, len(subjects))
	for i, s := range subjects {
		rows[i] = models.ResultRow{
			RegisterNumber: regno,
			SubjectCode:    fmt.Sprintf("SUB%d", i+1),
			SubjectName:    s,
			Marks:          "70",
			Status:         "Pass",
		}
	}
	return &portal.LookupResult{StudentName: "STUDENT " + regno, Rows: rows}
}

func queries(regnos ...string) []models.StudentQuery {
	out := make([]models.StudentQuery, len(regnos))
	for i, r := range regnos {
		out[i] = models.StudentQuery{RegisterNumber: r, DateOfBirth: "01/01/2001"}
	}
	return out
}

func TestExecute_AllSucceed(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]*portal.LookupResult{
		"1001": lookupResult("1001", "Maths", "English"),
		"1002": lookupResult("1002", "Physics"),
	}}

	run := NewRun(2)
	New(fetcher, 0).Execute(context.Background(), run, queries("1001", "1002"))

	if run.Status() != StatusCompleted {
		t.Errorf("expected status completed, got %s", run.Status())
	}
	if run.Table.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", run.Table.Len())
	}
	// Roster order drives lookup order.
	if len(fetcher.calls) != 2 || fetcher.calls[0] != "1001" || fetcher.calls[1] != "1002" {
		t.Errorf("unexpected call order: %v", fetcher.calls)
	}
}

func TestExecute_FailedStudentIsSkipped(t *testing.T) {
	fetcher := &stubFetcher{
		results: map[string]*portal.LookupResult{
			"1001": lookupResult("1001", "Maths"),
			"1003": lookupResult("1003", "Maths"),
		},
		errs: map[string]error{
			"1002": models.NewHarvestError(models.ErrCodePortalReject, "portal returned error: Invalid Register Number", nil),
		},
	}

	run := NewRun(3)
	New(fetcher, 0).Execute(context.Background(), run, queries("1001", "1002", "1003"))

	if run.Status() != StatusPartial {
		t.Errorf("expected status partial, got %s", run.Status())
	}

	// The failed student contributes zero rows; the loop keeps going.
	for _, row := range run.Table.Rows() {
		if row.RegisterNumber == "1002" {
			t.Errorf("failed student leaked into the table: %+v", row)
		}
	}
	if run.Table.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", run.Table.Len())
	}

	failures := run.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].RegisterNumber != "1002" || failures[0].Code != models.ErrCodePortalReject {
		t.Errorf("unexpected failure record: %+v", failures[0])
	}
}

func TestExecute_AllFail(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{
		"1001": fmt.Errorf("connection refused"),
		"1002": fmt.Errorf("connection refused"),
	}}

	run := NewRun(2)
	New(fetcher, 0).Execute(context.Background(), run, queries("1001", "1002"))

	if run.Status() != StatusFailed {
		t.Errorf("expected status failed, got %s", run.Status())
	}
	if run.Table.Len() != 0 {
		t.Errorf("expected empty table, got %d rows", run.Table.Len())
	}

	// A plain error without a code is recorded as a fetch failure.
	failures := run.Failures()
	if len(failures) != 2 || failures[0].Code != models.ErrCodeFetchFailed {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestExecute_NoFabricatedStudents(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]*portal.LookupResult{
		"1001": lookupResult("1001", "Maths"),
		"1002": lookupResult("1002", "Maths"),
	}}

	input := map[string]bool{"1001": true, "1002": true}

	run := NewRun(2)
	New(fetcher, 0).Execute(context.Background(), run, queries("1001", "1002"))

	for regno := range run.Table.RegisterNumbers() {
		if !input[regno] {
			t.Errorf("table contains register number %q not present in the roster", regno)
		}
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]*portal.LookupResult{
		"1001": lookupResult("1001", "Maths"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := NewRun(2)
	New(fetcher, 0).Execute(ctx, run, queries("1001", "1002"))

	if len(fetcher.calls) != 0 {
		t.Errorf("expected no lookups after cancellation, got %v", fetcher.calls)
	}
	if !run.Done() {
		t.Error("canceled run should still reach a terminal status")
	}
}

// cancelAfterFetcher cancels the run's context after each lookup returns.
type cancelAfterFetcher struct {
	inner  *stubFetcher
	cancel context.CancelFunc
}

func (c *cancelAfterFetcher) Fetch(ctx context.Context, query models.StudentQuery) (*portal.LookupResult, error) {
	result, err := c.inner.Fetch(ctx, query)
	c.cancel()
	return result, err
}

func TestExecute_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &cancelAfterFetcher{
		inner: &stubFetcher{results: map[string]*portal.LookupResult{
			"1001": lookupResult("1001", "Maths"),
			"1002": lookupResult("1002", "Maths"),
		}},
		cancel: cancel,
	}

	run := NewRun(2)
	h := New(fetcher, 5*time.Millisecond)
	h.Execute(ctx, run, queries("1001", "1002"))

	// The cancellation lands during the inter-student delay; the second
	// student must be neither looked up nor recorded as a failure.
	if got := fetcher.inner.calls; len(got) != 1 || got[0] != "1001" {
		t.Errorf("expected exactly one lookup before cancellation, got %v", got)
	}
	if failures := run.Failures(); len(failures) != 0 {
		t.Errorf("cancellation fabricated failure records: %+v", failures)
	}
	if run.Table.Len() != 1 {
		t.Errorf("expected the first student's row to survive, got %d rows", run.Table.Len())
	}
	if !run.Done() {
		t.Error("canceled run should still reach a terminal status")
	}
}

func TestFailureFor_PageSnapshot(t *testing.T) {
	err := &portal.PageError{
		HarvestError: models.NewHarvestError(models.ErrCodePortalReject, "portal returned error: No Results Found", nil),
		RawHTML:      "<html><body><b>No Results Found</b></body></html>",
	}

	failure := failureFor(models.StudentQuery{RegisterNumber: "1001", DateOfBirth: "01/01/2001"}, err)

	if failure.Code != models.ErrCodePortalReject {
		t.Errorf("expected code %s, got %s", models.ErrCodePortalReject, failure.Code)
	}
	if failure.Snapshot == "" {
		t.Error("expected a markdown snapshot of the portal page")
	}
}

func TestRun_StatusResponseOmitsSnapshots(t *testing.T) {
	run := NewRun(1)
	run.recordFailure(models.FetchFailure{
		RegisterNumber: "1001",
		Code:           models.ErrCodeParseFailed,
		Reason:         "result page layout not recognized",
		Snapshot:       "# page dump",
	})
	run.finish()

	resp := run.StatusResponse()
	if len(resp.Failures) != 1 {
		t.Fatalf("expected 1 failure in status, got %d", len(resp.Failures))
	}
	if resp.Failures[0].Snapshot != "" {
		t.Error("status response must not carry page snapshots")
	}

	// The full record keeps the snapshot for export diagnostics.
	if run.Failures()[0].Snapshot == "" {
		t.Error("Failures() should keep the snapshot")
	}
}

func TestRegistry_AddGet(t *testing.T) {
	reg := NewRegistry(0)
	run := NewRun(1)
	reg.Add(run)

	got, ok := reg.Get(run.ID)
	if !ok || got.ID != run.ID {
		t.Fatalf("registry did not return the stored run")
	}

	if _, ok := reg.Get("run-missing"); ok {
		t.Error("expected a miss for an unknown run ID")
	}
}
