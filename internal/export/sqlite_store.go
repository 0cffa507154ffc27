package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is the default Store implementation, backed by the embedded
// database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, progress, error, download_url, resolution, fps, quality, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, string(j.Status), j.Progress, nullString(j.Error), nullString(j.DownloadURL),
		j.Resolution, j.FPS, j.Quality,
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, progress, error, download_url, resolution, fps, quality, created_at, updated_at, completed_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var completedAt interface{}
	if status.Terminal() {
		completedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN (`+allowedFrom(status)+`)
	`, string(status), nullString(errMsg), now, completedAt, id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = MAX(progress, ?), updated_at = ?
		WHERE id = ?
	`, progress, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (s *SQLiteStore) SetDownloadURL(ctx context.Context, id, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET download_url = ?, updated_at = ?
		WHERE id = ?
	`, url, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (s *SQLiteStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, progress, error, download_url, resolution, fps, quality, created_at, updated_at, completed_at
		FROM jobs
		WHERE status IN ('completed', 'failed') AND completed_at < ?
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	return nil // the shared handle is closed by its owner
}

// allowedFrom renders the set of statuses a job may hold before moving to
// the target, as a SQL IN list.
func allowedFrom(to Status) string {
	switch to {
	case StatusProcessing:
		return `'queued'`
	case StatusCompleted:
		return `'processing'`
	case StatusFailed:
		return `'queued', 'processing'`
	}
	return `''`
}

func (s *SQLiteStore) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("export: job %s not found", id)
	}
	return ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status string
	var errMsg, downloadURL, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &status, &j.Progress, &errMsg, &downloadURL,
		&j.Resolution, &j.FPS, &j.Quality, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Status = Status(status)
	j.Error = errMsg.String
	j.DownloadURL = downloadURL.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		j.CompletedAt = &t
	}
	return &j, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
