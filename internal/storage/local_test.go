package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()

	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	return s
}

func TestLocalStorageRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	payload := []byte("jpeg bytes")

	exists, err := s.Exists(ctx, "thumbnails/1.jpg")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("object should not exist before upload")
	}

	if err := s.Upload(ctx, "thumbnails/1.jpg", bytes.NewReader(payload), int64(len(payload)), "image/jpeg"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err = s.Exists(ctx, "thumbnails/1.jpg")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("object should exist after upload")
	}

	rc, err := s.Download(ctx, "thumbnails/1.jpg")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %q, want %q", got, payload)
	}

	if err := s.Delete(ctx, "thumbnails/1.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = s.Exists(ctx, "thumbnails/1.jpg")
	if exists {
		t.Error("object should be gone after delete")
	}
}

func TestLocalStorageDeleteMissingIsNoop(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "thumbnails/404.jpg"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorageKeySanitization(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "", strings.NewReader("x"), 1, "image/jpeg"); err == nil {
		t.Error("empty key should be rejected")
	}

	// Traversal components are stripped, the object stays inside the root
	if err := s.Upload(ctx, "../escape.jpg", strings.NewReader("x"), 1, "image/jpeg"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	path := s.GetURL("../escape.jpg")
	if !strings.HasPrefix(path, s.baseDir) {
		t.Errorf("object path %q escapes storage root %q", path, s.baseDir)
	}
}
