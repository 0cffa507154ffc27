package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clipforge/exportd/internal/storage"
)

// Publisher moves a finished render into object storage and issues the
// time-limited download link stored on the job.
type Publisher struct {
	storage storage.Storage
	ttl     time.Duration
	logger  *slog.Logger
}

func NewPublisher(store storage.Storage, ttl time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{storage: store, ttl: ttl, logger: logger}
}

// ArtifactKey returns the object key for a job's output.
func ArtifactKey(jobID string) string {
	return "exports/" + jobID + "/output.mp4"
}

// Publish uploads the local render output and returns a signed download
// URL. A zero-byte output means the render silently produced nothing and is
// treated as a failure here rather than handed to the user as an empty file.
func (p *Publisher) Publish(ctx context.Context, jobID, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("render output missing: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("render output is empty")
	}

	key := ArtifactKey(jobID)
	if err := p.storage.Upload(ctx, localPath, key); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	url, err := p.storage.SignedReadURL(ctx, key, p.ttl)
	if err != nil {
		return "", fmt.Errorf("cannot sign download url: %w", err)
	}

	p.logger.Info("artifact published",
		"job_id", jobID,
		"key", key,
		"size_bytes", info.Size(),
		"url_ttl", p.ttl,
	)
	return url, nil
}
