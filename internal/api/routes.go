package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/exportd/internal/export"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/export", func(r chi.Router) {
		r.Post("/start", startExportHandler(cfg))
		r.Get("/status/{jobID}", jobStatusHandler(cfg))
		r.Delete("/cancel/{jobID}", cancelExportHandler(cfg))
		r.Get("/download/{jobID}", downloadHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
			return
		}

		job, report, err := cfg.Orchestrator.Start(r.Context(), export.Request{
			Elements: req.Timeline.Elements,
			Tracks:   req.Timeline.Tracks,
			Settings: req.Settings,
		})
		switch {
		case errors.Is(err, export.ErrInvalidTimeline):
			WriteValidationError(w, "timeline failed validation", report.Errors)
			return
		case errors.Is(err, export.ErrQueueFull):
			WriteError(w, http.StatusServiceUnavailable, "export queue is full", "QUEUE_FULL")
			return
		case err != nil:
			cfg.Logger.Error("cannot start export", "error", err)
			WriteError(w, http.StatusInternalServerError, "cannot start export", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, StartExportResponse{
			JobID:    job.ID,
			Status:   string(job.Status),
			Warnings: report.Warnings,
		})
	}
}

func jobStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Orchestrator.Get(r.Context(), chi.URLParam(r, "jobID"))
		if errors.Is(err, export.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		if err != nil {
			cfg.Logger.Error("cannot load job", "error", err)
			WriteError(w, http.StatusInternalServerError, "cannot load job", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		err := cfg.Orchestrator.Cancel(r.Context(), jobID)
		switch {
		case errors.Is(err, export.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		case errors.Is(err, export.ErrJobFinished):
			WriteError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
			return
		case err != nil:
			cfg.Logger.Error("cannot cancel job", "job_id", jobID, "error", err)
			WriteError(w, http.StatusInternalServerError, "cannot cancel job", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, CancelResponse{JobID: jobID, Status: string(export.StatusFailed)})
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Orchestrator.Get(r.Context(), chi.URLParam(r, "jobID"))
		if errors.Is(err, export.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		if err != nil {
			cfg.Logger.Error("cannot load job", "error", err)
			WriteError(w, http.StatusInternalServerError, "cannot load job", "INTERNAL_ERROR")
			return
		}

		if job.Status != export.StatusCompleted {
			WriteError(w, http.StatusBadRequest, "export not completed", "NOT_COMPLETED")
			return
		}
		if job.DownloadURL == "" {
			cfg.Logger.Error("completed job has no download url", "job_id", job.ID)
			WriteError(w, http.StatusInternalServerError, "download url unavailable", "INTERNAL_ERROR")
			return
		}

		http.Redirect(w, r, job.DownloadURL, http.StatusFound)
	}
}
