package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage is a development implementation of Storage backed by a
// directory on disk. Signed URLs are file:// URLs; there is no expiry.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create local storage root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (l *LocalStorage) SignedURL(ctx context.Context, assetID string) (string, error) {
	path := filepath.Join(l.root, "assets", assetID)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("asset %s not found in local storage: %w", assetID, err)
	}
	return "file://" + path, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath, key string) error {
	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("copy to local storage: %w", err)
	}
	return nil
}

func (l *LocalStorage) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "file://" + filepath.Join(l.root, filepath.FromSlash(key)), nil
}
