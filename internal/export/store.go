package export

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTransition is returned by stores when a status update would move
// a job backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("export: invalid status transition")

// Store persists job records. Implementations must enforce the status
// transition rules and keep progress monotone; Get returns (nil, nil) for an
// unknown job ID.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)

	// UpdateStatus moves a job to the given status, recording the error
	// message for failures and stamping CompletedAt on terminal states.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error

	// UpdateProgress records progress; values lower than the stored one
	// are ignored.
	UpdateProgress(ctx context.Context, id string, progress int) error

	// SetDownloadURL records the published artifact location.
	SetDownloadURL(ctx context.Context, id, url string) error

	// ListExpired returns terminal jobs whose completion predates cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error)

	Delete(ctx context.Context, id string) error

	Close() error
}
