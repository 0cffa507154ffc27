// Package export owns the export job lifecycle: creation, the worker pool
// that drives jobs through their phases, result publication, and retention.
package export

import (
	"time"

	"github.com/clipforge/exportd/internal/timeline"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// The lifecycle is strictly forward: queued to processing, processing to a
// terminal state, and queued straight to failed (cancellation before pickup).
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Job is the persisted record of one export request. The timeline itself is
// not persisted; it travels in memory with the queued task and a restart
// fails any job that had not finished.
type Job struct {
	ID          string
	Status      Status
	Progress    int
	Error       string
	DownloadURL string
	Resolution  string
	FPS         int
	Quality     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Request is a validated export request ready for the worker pool.
type Request struct {
	Elements []timeline.Element
	Tracks   []timeline.Track
	Settings timeline.ExportSettings
}
