package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tubefetch/bot/internal/db"
	"github.com/tubefetch/bot/internal/models"
)

// PostgresUserLedger provides PostgreSQL-backed persistence for chat users.
type PostgresUserLedger struct {
	pool db.Pool
}

// NewPostgresUserLedger constructs a user ledger backed by PostgreSQL.
func NewPostgresUserLedger(pool db.Pool) *PostgresUserLedger {
	return &PostgresUserLedger{pool: pool}
}

// Upsert creates or refreshes the user keyed by their chat identity. Callers
// leave ID empty on first contact; the id is minted here and the conflict
// clause keeps the existing one on later contacts.
func (r *PostgresUserLedger) Upsert(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	row := conn.QueryRow(ctx, `
        INSERT INTO users (id, chat_id, username, first_name, last_name, is_active, created_at, last_activity)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
        ON CONFLICT (chat_id) DO UPDATE
        SET username = EXCLUDED.username,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            last_activity = EXCLUDED.last_activity
        RETURNING id, chat_id, username, first_name, last_name, is_active, created_at, last_activity
    `, user.ID, user.ChatID, user.Username, user.FirstName, user.LastName, now)

	var stored models.User
	if err := row.Scan(&stored.ID, &stored.ChatID, &stored.Username, &stored.FirstName,
		&stored.LastName, &stored.IsActive, &stored.CreatedAt, &stored.LastActivity); err != nil {
		return models.User{}, fmt.Errorf("upsert user: %w", err)
	}

	return stored, nil
}

// FindByChatID fetches a user by their chat identity.
func (r *PostgresUserLedger) FindByChatID(ctx context.Context, chatID int64) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, chat_id, username, first_name, last_name, is_active, created_at, last_activity
        FROM users
        WHERE chat_id = $1
    `, chatID)

	var user models.User
	if err := row.Scan(&user.ID, &user.ChatID, &user.Username, &user.FirstName,
		&user.LastName, &user.IsActive, &user.CreatedAt, &user.LastActivity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by chat id: %w", err)
	}

	return user, nil
}

// PostgresDownloadLedger provides PostgreSQL-backed persistence for download requests.
type PostgresDownloadLedger struct {
	pool db.Pool
}

// NewPostgresDownloadLedger constructs a download ledger backed by PostgreSQL.
func NewPostgresDownloadLedger(pool db.Pool) *PostgresDownloadLedger {
	return &PostgresDownloadLedger{pool: pool}
}

// Create inserts a new download request row in its initial status.
func (r *PostgresDownloadLedger) Create(ctx context.Context, request models.DownloadRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := request.Status
	if status == "" {
		status = models.StatusPending
	}
	createdAt := request.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO download_requests
            (id, user_id, source_url, title, duration, format, quality, status, file_path, file_size, download_url, error_detail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', 0, '', '', $9)
    `, request.ID, request.UserID, request.SourceURL, request.Title, request.Duration,
		request.Format, request.Quality, status, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert download request: %w", err)
	}

	return nil
}

// MarkProcessing moves a pending request into the processing status.
func (r *PostgresDownloadLedger) MarkProcessing(ctx context.Context, requestID string) error {
	return r.transition(ctx, requestID, `
        UPDATE download_requests
        SET status = $2
        WHERE id = $1 AND status NOT IN ($3, $4)
    `, models.StatusProcessing)
}

// MarkCompleted finalizes a request with its stored file details.
func (r *PostgresDownloadLedger) MarkCompleted(ctx context.Context, requestID, filePath, downloadURL string, size int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE download_requests
        SET status = $2, file_path = $3, download_url = $4, file_size = $5, completed_at = $6
        WHERE id = $1 AND status NOT IN ($7, $8)
    `, requestID, models.StatusCompleted, filePath, downloadURL, size, time.Now().UTC(),
		models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("mark request completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.blockedReason(ctx, conn, requestID)
	}

	return nil
}

// MarkFailed finalizes a request with an error detail.
func (r *PostgresDownloadLedger) MarkFailed(ctx context.Context, requestID, detail string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE download_requests
        SET status = $2, error_detail = $3, completed_at = $4
        WHERE id = $1 AND status NOT IN ($5, $6)
    `, requestID, models.StatusFailed, detail, time.Now().UTC(),
		models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.blockedReason(ctx, conn, requestID)
	}

	return nil
}

// ListRecent returns the most recent requests for a user, newest first.
func (r *PostgresDownloadLedger) ListRecent(ctx context.Context, userID string, limit int) ([]models.DownloadRequest, error) {
	if limit <= 0 {
		limit = 5
	}
	return r.list(ctx, `
        SELECT id, user_id, source_url, title, duration, format, quality, status,
               file_path, file_size, download_url, error_detail, created_at, completed_at
        FROM download_requests
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, userID, limit)
}

// ListActive returns requests that have not yet reached a terminal status.
func (r *PostgresDownloadLedger) ListActive(ctx context.Context, userID string) ([]models.DownloadRequest, error) {
	return r.list(ctx, `
        SELECT id, user_id, source_url, title, duration, format, quality, status,
               file_path, file_size, download_url, error_detail, created_at, completed_at
        FROM download_requests
        WHERE user_id = $1 AND status IN ($2, $3)
        ORDER BY created_at DESC
    `, userID, models.StatusPending, models.StatusProcessing)
}

// CountCompleted returns how many requests a user has completed.
func (r *PostgresDownloadLedger) CountCompleted(ctx context.Context, userID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	row := conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM download_requests
        WHERE user_id = $1 AND status = $2
    `, userID, models.StatusCompleted)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed requests: %w", err)
	}

	return count, nil
}

func (r *PostgresDownloadLedger) transition(ctx context.Context, requestID, query, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, requestID, status, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.blockedReason(ctx, conn, requestID)
	}

	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// blockedReason distinguishes a missing row from one already in a terminal status.
func (r *PostgresDownloadLedger) blockedReason(ctx context.Context, conn rowQuerier, requestID string) error {
	var status string
	row := conn.QueryRow(ctx, `SELECT status FROM download_requests WHERE id = $1`, requestID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("inspect request status: %w", err)
	}
	return ErrTerminal
}

func (r *PostgresDownloadLedger) list(ctx context.Context, query string, args ...any) ([]models.DownloadRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query download requests: %w", err)
	}
	defer rows.Close()

	var requests []models.DownloadRequest
	for rows.Next() {
		var (
			req         models.DownloadRequest
			completedAt *time.Time
		)
		if err := rows.Scan(&req.ID, &req.UserID, &req.SourceURL, &req.Title, &req.Duration,
			&req.Format, &req.Quality, &req.Status, &req.FilePath, &req.FileSize,
			&req.DownloadURL, &req.ErrorDetail, &req.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan download request: %w", err)
		}
		if completedAt != nil {
			t := completedAt.UTC()
			req.CompletedAt = &t
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate download requests: %w", err)
	}

	return requests, nil
}

// PostgresStatsLedger provides PostgreSQL-backed persistence for download aggregates.
type PostgresStatsLedger struct {
	pool db.Pool
}

// NewPostgresStatsLedger constructs a stats ledger backed by PostgreSQL.
func NewPostgresStatsLedger(pool db.Pool) *PostgresStatsLedger {
	return &PostgresStatsLedger{pool: pool}
}

// RecordDownload adds one completed download to the user's aggregate.
func (r *PostgresStatsLedger) RecordDownload(ctx context.Context, userID string, bytes int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()
	_, err = conn.Exec(ctx, `
        INSERT INTO download_stats (user_id, total_downloads, total_bytes, last_download, updated_at)
        VALUES ($1, 1, $2, $3, $3)
        ON CONFLICT (user_id) DO UPDATE
        SET total_downloads = download_stats.total_downloads + 1,
            total_bytes = download_stats.total_bytes + EXCLUDED.total_bytes,
            last_download = EXCLUDED.last_download,
            updated_at = EXCLUDED.updated_at
    `, userID, bytes, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("record download stat: %w", err)
	}

	return nil
}

// ForUser returns the per-user download aggregate.
func (r *PostgresStatsLedger) ForUser(ctx context.Context, userID string) (models.DownloadStats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.DownloadStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT user_id, total_downloads, total_bytes, last_download, updated_at
        FROM download_stats
        WHERE user_id = $1
    `, userID)

	var stats models.DownloadStats
	if err := row.Scan(&stats.UserID, &stats.TotalDownloads, &stats.TotalBytes,
		&stats.LastDownload, &stats.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DownloadStats{}, ErrNotFound
		}
		return models.DownloadStats{}, fmt.Errorf("select download stats: %w", err)
	}

	return stats, nil
}

var _ UserLedger = (*PostgresUserLedger)(nil)
var _ DownloadLedger = (*PostgresDownloadLedger)(nil)
var _ StatsLedger = (*PostgresStatsLedger)(nil)
