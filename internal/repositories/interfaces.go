package repositories

import (
	"context"

	"github.com/tubefetch/bot/internal/models"
)

// UserLedger defines the data access contract for chat users.
type UserLedger interface {
	// Upsert creates the user on first contact and refreshes identity fields and
	// last_activity on every later one. It returns the stored record.
	Upsert(ctx context.Context, user models.User) (models.User, error)
	FindByChatID(ctx context.Context, chatID int64) (models.User, error)
}

// DownloadLedger records every download attempt and its outcome.
type DownloadLedger interface {
	Create(ctx context.Context, request models.DownloadRequest) error
	MarkProcessing(ctx context.Context, requestID string) error
	MarkCompleted(ctx context.Context, requestID, filePath, downloadURL string, size int64) error
	MarkFailed(ctx context.Context, requestID, detail string) error
	ListRecent(ctx context.Context, userID string, limit int) ([]models.DownloadRequest, error)
	ListActive(ctx context.Context, userID string) ([]models.DownloadRequest, error)
	CountCompleted(ctx context.Context, userID string) (int64, error)
}

// StatsLedger maintains the per-user download aggregate.
type StatsLedger interface {
	RecordDownload(ctx context.Context, userID string, bytes int64) error
	ForUser(ctx context.Context, userID string) (models.DownloadStats, error)
}
