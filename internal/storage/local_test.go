package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewLocalStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	return store
}

func TestLocalStorePut(t *testing.T) {
	store := newTestStore(t)

	src := filepath.Join(t.TempDir(), "scratch.mp4")
	if err := os.WriteFile(src, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	handle, err := store.Put(context.Background(), src, "req-1.mp4")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasPrefix(handle, "file://") {
		t.Fatalf("expected file URI handle, got %q", handle)
	}

	stored := strings.TrimPrefix(handle, "file://")
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Fatalf("unexpected stored content: %q", data)
	}
}

func TestLocalStorePutMissingSource(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Put(context.Background(), "/nonexistent/source.mp4", "x.mp4"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store := newTestStore(t)

	src := filepath.Join(t.TempDir(), "scratch.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if _, err := store.Put(context.Background(), src, "song.mp3"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if !store.Delete(context.Background(), "song.mp3") {
		t.Fatal("expected delete of existing object to succeed")
	}
	// Best-effort contract: errors surface as false, never panic.
	if store.Delete(context.Background(), "song.mp3") {
		t.Fatal("expected delete of missing object to report false")
	}
}

func TestLocalStoreStatistics(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.FileCount != 0 || stats.TotalBytes != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	srcDir := t.TempDir()
	for i, content := range []string{"aaaa", "bbbbbb"} {
		src := filepath.Join(srcDir, "f")
		if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
			t.Fatalf("write source: %v", err)
		}
		if _, err := store.Put(context.Background(), src, string(rune('a'+i))+".bin"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	stats, err = store.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.FileCount != 2 || stats.TotalBytes != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
