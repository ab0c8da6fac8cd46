package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore implements ObjectStore by copying files under a root directory.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore constructs a filesystem-backed store rooted at root.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage root: %v", ErrStorage, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// Put copies the local file into the store and returns a file URI handle.
func (s *LocalStore) Put(ctx context.Context, localPath, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open source %s: %v", ErrStorage, localPath, err)
	}
	defer src.Close()

	destPath := filepath.Join(s.root, name)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrStorage, destPath, err)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return "", fmt.Errorf("%w: copy to %s: %v", ErrStorage, destPath, err)
	}
	if err := dest.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", ErrStorage, destPath, err)
	}

	abs, err := filepath.Abs(destPath)
	if err != nil {
		abs = destPath
	}
	return "file://" + abs, nil
}

// Delete removes the named file; a missing file or backend error yields false.
func (s *LocalStore) Delete(_ context.Context, name string) bool {
	path := filepath.Join(s.root, name)
	if err := os.Remove(path); err != nil {
		s.logger.Warn("delete stored file", "name", name, "error", err)
		return false
	}
	return true
}

// Statistics walks the root directory and totals regular files.
func (s *LocalStore) Statistics(_ context.Context) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.FileCount++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("%w: walk storage root: %v", ErrStorage, err)
	}
	return stats, nil
}

var _ ObjectStore = (*LocalStore)(nil)
