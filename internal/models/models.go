package models

import "time"

// User is the durable identity record for a chat user. ChatID holds the
// sender's platform user id, which doubles as the private-chat id.
type User struct {
	ID           string
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    time.Time
	LastActivity time.Time
}

// Lifecycle statuses for a download request. Completed and failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DownloadRequest is the durable record of one fetch-and-deliver attempt.
// Rows are append-only; the ledger never deletes them.
type DownloadRequest struct {
	ID          string
	UserID      string
	SourceURL   string
	Title       string
	Duration    int
	Format      string
	Quality     string
	Status      string
	FilePath    string
	FileSize    int64
	DownloadURL string
	ErrorDetail string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the request has reached a final status.
func (r DownloadRequest) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// DownloadStats aggregates completed downloads per user.
type DownloadStats struct {
	UserID         string
	TotalDownloads int64
	TotalBytes     int64
	LastDownload   time.Time
	UpdatedAt      time.Time
}
