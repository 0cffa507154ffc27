package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/exportd/internal/export"
	"github.com/clipforge/exportd/internal/timeline"
)

type fakeExportService struct {
	startJob    *export.Job
	startReport *timeline.ValidationReport
	startErr    error
	jobs        map[string]*export.Job
	cancelErr   error
	panicOnGet  bool
}

func (f *fakeExportService) Start(_ context.Context, _ export.Request) (*export.Job, *timeline.ValidationReport, error) {
	return f.startJob, f.startReport, f.startErr
}

func (f *fakeExportService) Get(_ context.Context, id string) (*export.Job, error) {
	if f.panicOnGet {
		panic("boom")
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, export.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeExportService) Cancel(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.jobs[id]; !ok {
		return export.ErrJobNotFound
	}
	return nil
}

func testRouter(svc ExportService) http.Handler {
	return NewRouter(ServerConfig{
		Orchestrator: svc,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime:    time.Now(),
		Version:      "0.1.0",
	})
}

func startBody() string {
	return `{
		"timeline": {
			"elements": [{"id": "e1", "type": "video", "trackId": "t1", "timelineStartMs": 0, "timelineEndMs": 3000, "assetId": "a1"}],
			"tracks": [{"id": "t1", "order": 0}]
		},
		"settings": {"resolution": "720p", "fps": 30, "quality": "medium"}
	}`
}

func TestStartExport_Accepted(t *testing.T) {
	svc := &fakeExportService{
		startJob:    &export.Job{ID: "job-1", Status: export.StatusQueued},
		startReport: &timeline.ValidationReport{Valid: true, Warnings: []string{"element e1: start clamped"}},
	}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/export/start", strings.NewReader(startBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp StartExportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" || resp.Status != "queued" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", resp.Warnings)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestStartExport_BadJSON(t *testing.T) {
	router := testRouter(&fakeExportService{})

	req := httptest.NewRequest(http.MethodPost, "/export/start", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStartExport_InvalidTimeline(t *testing.T) {
	svc := &fakeExportService{
		startReport: &timeline.ValidationReport{Valid: false, Errors: []string{"settings: unsupported resolution \"8k\""}},
		startErr:    export.ErrInvalidTimeline,
	}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/export/start", strings.NewReader(startBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "INVALID_TIMELINE" || len(resp.Details) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestStartExport_QueueFull(t *testing.T) {
	svc := &fakeExportService{
		startReport: &timeline.ValidationReport{Valid: true},
		startErr:    export.ErrQueueFull,
	}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/export/start", strings.NewReader(startBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeExportService{jobs: map[string]*export.Job{
		"job-1": {
			ID:          "job-1",
			Status:      export.StatusCompleted,
			Progress:    100,
			DownloadURL: "https://cdn.example/exports/job-1/output.mp4?sig=x",
			CreatedAt:   completedAt.Add(-time.Minute),
			CompletedAt: &completedAt,
		},
	}}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/export/status/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp JobStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "completed" || resp.Progress != 100 || resp.DownloadURL == "" {
		t.Errorf("response = %+v", resp)
	}
	if resp.CompletedAt != "2026-08-01T12:00:00Z" {
		t.Errorf("completedAt = %q", resp.CompletedAt)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	router := testRouter(&fakeExportService{jobs: map[string]*export.Job{}})

	req := httptest.NewRequest(http.MethodGet, "/export/status/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelExport(t *testing.T) {
	svc := &fakeExportService{jobs: map[string]*export.Job{
		"job-1": {ID: "job-1", Status: export.StatusProcessing},
	}}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/export/cancel/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp CancelResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" || resp.Status != "failed" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCancelExport_AlreadyFinished(t *testing.T) {
	svc := &fakeExportService{cancelErr: export.ErrJobFinished}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/export/cancel/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestDownload_RedirectsToSignedURL(t *testing.T) {
	svc := &fakeExportService{jobs: map[string]*export.Job{
		"job-1": {
			ID:          "job-1",
			Status:      export.StatusCompleted,
			DownloadURL: "https://cdn.example/exports/job-1/output.mp4?sig=x",
		},
	}}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/export/download/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != svc.jobs["job-1"].DownloadURL {
		t.Errorf("Location = %q", loc)
	}
}

func TestDownload_NotCompleted(t *testing.T) {
	svc := &fakeExportService{jobs: map[string]*export.Job{
		"job-1": {ID: "job-1", Status: export.StatusProcessing, Progress: 60},
	}}
	router := testRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/export/download/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := testRouter(&fakeExportService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "0.1.0" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := testRouter(&fakeExportService{panicOnGet: true})

	req := httptest.NewRequest(http.MethodGet, "/export/status/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic", rec.Code)
	}
}
