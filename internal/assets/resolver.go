// Package assets turns timeline asset references into local files the render
// engine can read, downloading them with bounded retries.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/clipforge/exportd/internal/storage"
	"github.com/clipforge/exportd/internal/timeline"
)

// ErrPlaceholderAsset marks an element whose asset id is a local editor
// placeholder. Such elements are skipped with a warning, never fetched.
var ErrPlaceholderAsset = errors.New("placeholder asset id")

// AssetError is a download or resolution failure for one asset.
type AssetError struct {
	AssetID   string
	Status    int // HTTP status when applicable, 0 otherwise
	Retryable bool
	Err       error
}

func (e *AssetError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("asset %s: HTTP %d: %v", e.AssetID, e.Status, e.Err)
	}
	return fmt.Sprintf("asset %s: %v", e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// Resolver materializes asset references as files under a per-job temp
// directory. Ownership of the files stays with the job: the orchestrator
// removes the whole directory on both success and failure.
type Resolver struct {
	storage    storage.Storage
	downloader *Downloader
	logger     *slog.Logger
}

func NewResolver(store storage.Storage, downloader *Downloader, logger *slog.Logger) *Resolver {
	return &Resolver{storage: store, downloader: downloader, logger: logger}
}

// Resolve returns a local file path for the element's asset. The three
// reference classes are handled separately: storage-backed ids go through
// the signed-URL collaborator, external URLs are fetched directly, and
// placeholder ids return ErrPlaceholderAsset without any network activity.
func (r *Resolver) Resolve(ctx context.Context, jobDir string, el *timeline.Element) (string, error) {
	if external := el.ExternalAssetURL(); external != "" {
		if _, err := url.Parse(external); err != nil {
			return "", &AssetError{AssetID: el.AssetID, Retryable: false, Err: fmt.Errorf("bad external url: %w", err)}
		}
		dest := filepath.Join(jobDir, destName(el.ID))
		return r.downloader.Download(ctx, external, dest, el.AssetID)
	}

	if timeline.IsPlaceholderAssetID(el.AssetID) {
		r.logger.Warn("skipping element with placeholder asset id",
			"element_id", el.ID, "asset_id", el.AssetID)
		return "", fmt.Errorf("element %s: %w", el.ID, ErrPlaceholderAsset)
	}

	signed, err := r.storage.SignedURL(ctx, el.AssetID)
	if err != nil {
		return "", &AssetError{AssetID: el.AssetID, Retryable: false, Err: fmt.Errorf("fetch signed url: %w", err)}
	}

	dest := filepath.Join(jobDir, destName(el.ID))
	return r.downloader.Download(ctx, signed, dest, el.AssetID)
}
