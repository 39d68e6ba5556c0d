package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/portal"
)

// stubFetcher returns a fixed result or error for any query.
type stubFetcher struct {
	result *portal.LookupResult
	err    error
}

func (s *stubFetcher) Fetch(_ context.Context, _ models.StudentQuery) (*portal.LookupResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func lookupRouter(fetcher portal.Fetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/lookup", PostLookup(fetcher))
	return r
}

func doLookup(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, models.LookupResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp models.LookupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return w, resp
}

const validLookupBody = `{"register_number": "1001", "date_of_birth": "14/05/2001"}`

func TestPostLookup_Success(t *testing.T) {
	fetcher := &stubFetcher{result: &portal.LookupResult{
		StudentName: "ARUN KUMAR S",
		Rows: []models.ResultRow{
			{RegisterNumber: "1001", StudentName: "ARUN KUMAR S", SubjectCode: "MAT101", SubjectName: "Mathematics I", Marks: "78", Status: "Pass"},
		},
	}}

	w, resp := doLookup(t, lookupRouter(fetcher), validLookupBody)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !resp.Success || resp.StudentName != "ARUN KUMAR S" || len(resp.Rows) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestPostLookup_PortalRejected(t *testing.T) {
	// Session.Fetch wraps rejections in a PageError; the status mapping
	// must see through the wrapper.
	fetcher := &stubFetcher{err: &portal.PageError{
		HarvestError: models.NewHarvestError(models.ErrCodePortalReject, "portal returned error: No Results Found", nil),
		RawHTML:      "<html><body>No Results Found</body></html>",
	}}

	w, resp := doLookup(t, lookupRouter(fetcher), validLookupBody)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %+v)", w.Code, resp)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodePortalReject {
		t.Errorf("expected error code %s, got %+v", models.ErrCodePortalReject, resp.Error)
	}
}

func TestPostLookup_ParseFailed(t *testing.T) {
	fetcher := &stubFetcher{err: &portal.PageError{
		HarvestError: models.NewHarvestError(models.ErrCodeParseFailed, "result page layout not recognized", nil),
		RawHTML:      "<html><body><marquee>under maintenance</marquee></body></html>",
	}}

	w, resp := doLookup(t, lookupRouter(fetcher), validLookupBody)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeParseFailed {
		t.Errorf("expected error code %s, got %+v", models.ErrCodeParseFailed, resp.Error)
	}
}

func TestPostLookup_Timeout(t *testing.T) {
	fetcher := &stubFetcher{err: models.NewHarvestError(models.ErrCodeTimeout, "lookup timed out", context.DeadlineExceeded)}

	w, resp := doLookup(t, lookupRouter(fetcher), validLookupBody)

	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeTimeout {
		t.Errorf("expected error code %s, got %+v", models.ErrCodeTimeout, resp.Error)
	}
}

func TestPostLookup_MissingFields(t *testing.T) {
	fetcher := &stubFetcher{result: &portal.LookupResult{}}

	w, _ := doLookup(t, lookupRouter(fetcher), `{"register_number": "1001"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing date_of_birth, got %d", w.Code)
	}
}
