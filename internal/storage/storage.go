package storage

import (
	"context"
	"errors"
)

// ErrStorage indicates a persistence or upload failure in the object store.
var ErrStorage = errors.New("object storage failure")

// Stats aggregates usage over the store's whole namespace.
type Stats struct {
	TotalBytes int64 `json:"total_bytes"`
	FileCount  int64 `json:"file_count"`
}

// ObjectStore places finished files into durable storage and hands back a
// retrieval handle. The backend is chosen once at startup and never mixed
// per call.
type ObjectStore interface {
	// Put stores the local file under the logical name and returns a retrieval
	// handle: an absolute file URI for the local backend, a time-limited signed
	// URL for the cloud backend.
	Put(ctx context.Context, localPath, name string) (string, error)
	// Delete removes the named object. Best-effort: backend errors are logged
	// and reported as a false return, never as an error.
	Delete(ctx context.Context, name string) bool
	// Statistics reports usage over the whole namespace.
	Statistics(ctx context.Context) (Stats, error)
}
