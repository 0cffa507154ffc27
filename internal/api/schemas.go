package api

import (
	"time"

	"github.com/clipforge/exportd/internal/export"
	"github.com/clipforge/exportd/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptimeS"`
}

type StartExportRequest struct {
	Timeline TimelinePayload         `json:"timeline"`
	Settings timeline.ExportSettings `json:"settings"`
}

type TimelinePayload struct {
	Elements []timeline.Element `json:"elements"`
	Tracks   []timeline.Track   `json:"tracks"`
}

type StartExportResponse struct {
	JobID    string   `json:"jobId"`
	Status   string   `json:"status"`
	Warnings []string `json:"warnings,omitempty"`
}

type JobStatusResponse struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type CancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func JobToResponse(j *export.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		Error:       j.Error,
		DownloadURL: j.DownloadURL,
		CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
