package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeObjectStore struct {
	mu       sync.Mutex
	uploads  map[string]string // key -> local path
	signBase string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		uploads:  make(map[string]string),
		signBase: "https://cdn.example/",
	}
}

func (f *fakeObjectStore) SignedURL(_ context.Context, assetID string) (string, error) {
	return f.signBase + "assets/" + assetID, nil
}

func (f *fakeObjectStore) Upload(_ context.Context, localPath, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = localPath
	return nil
}

func (f *fakeObjectStore) SignedReadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return f.signBase + key + "?sig=abc", nil
}

func TestPublisher_UploadsAndSigns(t *testing.T) {
	store := newFakeObjectStore()
	pub := NewPublisher(store, 24*time.Hour, testLogger())

	outPath := filepath.Join(t.TempDir(), "output.mp4")
	if err := os.WriteFile(outPath, []byte("mp4 bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	url, err := pub.Publish(context.Background(), "job-1", outPath)
	if err != nil {
		t.Fatalf("Publish error = %v", err)
	}
	if !strings.Contains(url, "exports/job-1/output.mp4") {
		t.Errorf("url = %q, want artifact key in path", url)
	}
	if _, ok := store.uploads["exports/job-1/output.mp4"]; !ok {
		t.Errorf("uploads = %v, want artifact key", store.uploads)
	}
}

func TestPublisher_RejectsEmptyOutput(t *testing.T) {
	store := newFakeObjectStore()
	pub := NewPublisher(store, 24*time.Hour, testLogger())

	outPath := filepath.Join(t.TempDir(), "output.mp4")
	if err := os.WriteFile(outPath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := pub.Publish(context.Background(), "job-1", outPath); err == nil {
		t.Error("Publish accepted an empty render output")
	}
	if len(store.uploads) != 0 {
		t.Error("empty output was uploaded")
	}
}

func TestPublisher_RejectsMissingOutput(t *testing.T) {
	store := newFakeObjectStore()
	pub := NewPublisher(store, 24*time.Hour, testLogger())

	if _, err := pub.Publish(context.Background(), "job-1", filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Error("Publish accepted a missing render output")
	}
}
