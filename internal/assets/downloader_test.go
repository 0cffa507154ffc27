package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDownloader(t *testing.T) *Downloader {
	t.Helper()
	d := NewDownloader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestDownload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake video bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "el1")
	d := testDownloader(t)

	path, err := d.Download(context.Background(), srv.URL+"/clip.mp4", dest, "a1")
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("path = %q, want .mp4 extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "fake video bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestDownload_ServerErrorRetriesExactlyThreeTimes(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := testDownloader(t)
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "el"), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	var assetErr *AssetError
	if !errors.As(err, &assetErr) {
		t.Fatalf("error %T is not *AssetError", err)
	}
	if assetErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", assetErr.Status)
	}
}

func TestDownload_NotFoundShortCircuits(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := testDownloader(t)
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "el"), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDownload_RecoversAfterTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := testDownloader(t)
	path, err := d.Download(context.Background(), srv.URL+"/a.png", filepath.Join(t.TempDir(), "el"), "a1")
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if path == "" {
		t.Error("empty path on success")
	}
}

func TestDownload_UnsupportedScheme(t *testing.T) {
	d := testDownloader(t)
	_, err := d.Download(context.Background(), "ftp://example.com/a.mp4", filepath.Join(t.TempDir(), "el"), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	var assetErr *AssetError
	if !errors.As(err, &assetErr) || assetErr.Retryable {
		t.Errorf("want non-retryable AssetError, got %v", err)
	}
}

func TestDownload_EmptyBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDownloader(t)
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "el"), "a1")
	if err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestDownload_OversizeContentLengthAborts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Length", "600000000")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDownloader(t)
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "el"), "a1")
	if err == nil {
		t.Fatal("expected error for oversize payload")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (oversize must not retry)", attempts)
	}
}

func TestInferExtension(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"http://x/video.mp4", "", ".mp4"},
		{"http://x/clip.mov?sig=abc", "", ".mov"},
		{"http://x/asset", "video/mp4", ".mp4"},
		{"http://x/asset", "image/png", ".png"},
		{"http://x/asset", "audio/mpeg", ".mp3"},
		{"http://x/asset", "", ".bin"},
	}
	for _, tt := range tests {
		if got := inferExtension(tt.url, tt.contentType); got != tt.want {
			t.Errorf("inferExtension(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}
