package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MaxAssetBytes is the hard payload cap; larger downloads abort
	// without consuming retries.
	MaxAssetBytes = 500 * 1024 * 1024

	defaultAttempts       = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 5 * time.Second
	defaultAttemptTimeout = 45 * time.Second
)

// Downloader fetches asset URLs to disk with bounded, classified retries.
// Server errors and network failures retry with exponential backoff; client
// errors, unsupported schemes and oversize payloads fail immediately.
type Downloader struct {
	client         *http.Client
	logger         *slog.Logger
	attempts       int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		client:         &http.Client{},
		logger:         logger,
		attempts:       defaultAttempts,
		baseDelay:      defaultBaseDelay,
		maxDelay:       defaultMaxDelay,
		attemptTimeout: defaultAttemptTimeout,
		sleep:          sleepCtx,
	}
}

// Download fetches rawURL into destBase plus an extension inferred from the
// URL or response content type. It returns the final on-disk path.
func (d *Downloader) Download(ctx context.Context, rawURL, destBase, assetID string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: fmt.Errorf("malformed url: %w", err)}
	}
	switch u.Scheme {
	case "http", "https":
	case "file":
		// local storage collaborator hands out file:// URLs in development
		return d.linkLocal(u.Path, destBase, assetID)
	default:
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		dest, err := d.attempt(ctx, rawURL, destBase, assetID)
		if err == nil {
			return dest, nil
		}
		lastErr = err

		var assetErr *AssetError
		retryable := true
		if errors.As(err, &assetErr) {
			retryable = assetErr.Retryable
		}
		if !retryable || attempt == d.attempts {
			break
		}

		delay := d.baseDelay << (attempt - 1)
		if delay > d.maxDelay {
			delay = d.maxDelay
		}
		d.logger.Warn("asset download failed, retrying",
			"asset_id", assetID, "attempt", attempt, "delay", delay, "error", err)
		if err := d.sleep(ctx, delay); err != nil {
			return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
		}
	}
	return "", lastErr
}

func (d *Downloader) attempt(ctx context.Context, rawURL, destBase, assetID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// network errors retry; context cancellation does not
		if ctx.Err() == context.Canceled {
			return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
		}
		return "", &AssetError{AssetID: assetID, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode >= 500
		return "", &AssetError{
			AssetID:   assetID,
			Status:    resp.StatusCode,
			Retryable: retryable,
			Err:       fmt.Errorf("unexpected status"),
		}
	}

	if resp.ContentLength > MaxAssetBytes {
		return "", &AssetError{
			AssetID:   assetID,
			Retryable: false,
			Err:       fmt.Errorf("payload %d bytes exceeds cap %d", resp.ContentLength, int64(MaxAssetBytes)),
		}
	}

	dest := destBase + inferExtension(rawURL, resp.Header.Get("Content-Type"))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}

	written, err := io.Copy(out, io.LimitReader(resp.Body, MaxAssetBytes+1))
	closeErr := out.Close()
	if err != nil {
		os.Remove(dest)
		return "", &AssetError{AssetID: assetID, Retryable: true, Err: fmt.Errorf("body copy: %w", err)}
	}
	if closeErr != nil {
		os.Remove(dest)
		return "", &AssetError{AssetID: assetID, Retryable: true, Err: closeErr}
	}
	if written > MaxAssetBytes {
		os.Remove(dest)
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: fmt.Errorf("payload exceeds cap %d", int64(MaxAssetBytes))}
	}

	if err := d.verify(dest, written, resp, assetID); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// verify checks download integrity: non-empty body and on-disk size matching
// what was transferred. Content-type/extension mismatch is logged only.
func (d *Downloader) verify(dest string, written int64, resp *http.Response, assetID string) error {
	if written == 0 {
		return &AssetError{AssetID: assetID, Retryable: true, Err: fmt.Errorf("empty response body")}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return &AssetError{AssetID: assetID, Retryable: true, Err: err}
	}
	if info.Size() != written {
		return &AssetError{
			AssetID:   assetID,
			Retryable: true,
			Err:       fmt.Errorf("size mismatch: wrote %d bytes, file has %d", written, info.Size()),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !plausibleContentType(filepath.Ext(dest), contentType) {
		d.logger.Warn("asset content type does not match extension",
			"asset_id", assetID, "extension", filepath.Ext(dest), "content_type", contentType)
	}
	return nil
}

// linkLocal copies a file:// asset into the job directory so cleanup stays
// uniform across reference classes.
func (d *Downloader) linkLocal(srcPath, destBase, assetID string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}
	defer src.Close()

	dest := destBase + filepath.Ext(srcPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return "", &AssetError{AssetID: assetID, Retryable: false, Err: err}
	}
	return dest, nil
}

func inferExtension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	switch {
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(contentType, "video/quicktime"):
		return ".mov"
	case strings.HasPrefix(contentType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(contentType, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(contentType, "audio/wav"), strings.HasPrefix(contentType, "audio/x-wav"):
		return ".wav"
	case strings.HasPrefix(contentType, "audio/"):
		return ".m4a"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/"):
		return ".jpg"
	}
	return ".bin"
}

func plausibleContentType(ext, contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return ext == ".mp4" || ext == ".mov" || ext == ".webm" || ext == ".mkv" || ext == ".avi"
	case strings.HasPrefix(contentType, "audio/"):
		return ext == ".mp3" || ext == ".wav" || ext == ".m4a" || ext == ".aac" || ext == ".ogg" || ext == ".mp4"
	case strings.HasPrefix(contentType, "image/"):
		return ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".gif" || ext == ".webp"
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
