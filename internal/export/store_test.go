package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/exportd/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "jobs.db"), testLogger())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSQLiteStore(database.Conn())
}

// the store contract is exercised against both local implementations
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": newSQLiteStore(t),
		"memory": NewMemoryStore(),
	}
}

func queuedJob(id string) *Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &Job{
		ID:         id,
		Status:     StatusQueued,
		Progress:   10,
		Resolution: "1080p",
		FPS:        30,
		Quality:    "high",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, queuedJob("j1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}

			got, err := store.Get(ctx, "j1")
			if err != nil {
				t.Fatalf("Get error = %v", err)
			}
			if got == nil {
				t.Fatal("Get returned nil for existing job")
			}
			if got.Status != StatusQueued || got.Progress != 10 || got.Resolution != "1080p" {
				t.Errorf("Get = %+v", got)
			}

			missing, err := store.Get(ctx, "nope")
			if err != nil {
				t.Fatalf("Get(missing) error = %v", err)
			}
			if missing != nil {
				t.Errorf("Get(missing) = %+v, want nil", missing)
			}
		})
	}
}

func TestStore_LifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, queuedJob("j1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}

			// queued cannot complete without processing
			err := store.UpdateStatus(ctx, "j1", StatusCompleted, "")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("queued->completed = %v, want ErrInvalidTransition", err)
			}

			if err := store.UpdateStatus(ctx, "j1", StatusProcessing, ""); err != nil {
				t.Fatalf("queued->processing error = %v", err)
			}
			if err := store.UpdateStatus(ctx, "j1", StatusCompleted, ""); err != nil {
				t.Fatalf("processing->completed error = %v", err)
			}

			got, _ := store.Get(ctx, "j1")
			if got.CompletedAt == nil {
				t.Error("CompletedAt not stamped on terminal status")
			}

			// terminal states are immutable
			err = store.UpdateStatus(ctx, "j1", StatusFailed, "late failure")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("completed->failed = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestStore_CancelWhileQueued(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, queuedJob("j1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}
			if err := store.UpdateStatus(ctx, "j1", StatusFailed, "canceled by user"); err != nil {
				t.Fatalf("queued->failed error = %v", err)
			}

			// a worker picking the job up afterwards must be rejected
			err := store.UpdateStatus(ctx, "j1", StatusProcessing, "")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("failed->processing = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestStore_ProgressNeverRegresses(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, queuedJob("j1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}

			for _, p := range []int{25, 60, 40, 90} {
				if err := store.UpdateProgress(ctx, "j1", p); err != nil {
					t.Fatalf("UpdateProgress(%d) error = %v", p, err)
				}
			}

			got, _ := store.Get(ctx, "j1")
			if got.Progress != 90 {
				t.Errorf("Progress = %d, want 90", got.Progress)
			}
		})
	}
}

func TestStore_DownloadURL(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, queuedJob("j1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}
			if err := store.SetDownloadURL(ctx, "j1", "https://cdn.example/exports/j1/output.mp4?sig=x"); err != nil {
				t.Fatalf("SetDownloadURL error = %v", err)
			}
			got, _ := store.Get(ctx, "j1")
			if got.DownloadURL == "" {
				t.Error("DownloadURL not persisted")
			}
		})
	}
}

func TestStore_ListExpiredAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"old", "fresh", "running"} {
				if err := store.Create(ctx, queuedJob(id)); err != nil {
					t.Fatalf("Create error = %v", err)
				}
			}
			store.UpdateStatus(ctx, "old", StatusProcessing, "")
			store.UpdateStatus(ctx, "old", StatusCompleted, "")
			store.UpdateStatus(ctx, "fresh", StatusProcessing, "")
			store.UpdateStatus(ctx, "fresh", StatusCompleted, "")
			store.UpdateStatus(ctx, "running", StatusProcessing, "")

			// everything completed so far predates a future cutoff
			expired, err := store.ListExpired(ctx, time.Now().UTC().Add(time.Hour))
			if err != nil {
				t.Fatalf("ListExpired error = %v", err)
			}
			if len(expired) != 2 {
				t.Fatalf("ListExpired = %d jobs, want 2", len(expired))
			}

			// a cutoff in the past matches nothing
			none, err := store.ListExpired(ctx, time.Now().UTC().Add(-time.Hour))
			if err != nil {
				t.Fatalf("ListExpired error = %v", err)
			}
			if len(none) != 0 {
				t.Errorf("ListExpired(past) = %d jobs, want 0", len(none))
			}

			if err := store.Delete(ctx, "old"); err != nil {
				t.Fatalf("Delete error = %v", err)
			}
			got, _ := store.Get(ctx, "old")
			if got != nil {
				t.Error("job survived Delete")
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusQueued, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
