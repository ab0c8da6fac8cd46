package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tubefetch/bot/internal/bot"
	"github.com/tubefetch/bot/internal/config"
	"github.com/tubefetch/bot/internal/db"
	"github.com/tubefetch/bot/internal/extract"
	"github.com/tubefetch/bot/internal/handlers"
	"github.com/tubefetch/bot/internal/metrics"
	"github.com/tubefetch/bot/internal/ratelimit"
	"github.com/tubefetch/bot/internal/repositories"
	"github.com/tubefetch/bot/internal/session"
	"github.com/tubefetch/bot/internal/storage"
)

// dependencies holds everything serve needs after wiring.
type dependencies struct {
	orchestrator *bot.Orchestrator
	pool         *bot.Pool
	admin        handlers.Dependencies
}

// buildDependencies wires the concrete implementations behind the orchestrator
// and the admin endpoints.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, transport bot.Transport, logger *slog.Logger) (*dependencies, error) {
	client := extract.NewClient(cfg.YTDLPPath, cfg.ScratchDir, cfg.YTDLPTimeout)
	provider := extract.NewCachingProvider(client, cfg.MetadataCacheTTL)

	var (
		store storage.ObjectStore
		err   error
	)
	switch cfg.StorageBackend {
	case config.BackendS3:
		store, err = storage.NewS3Store(ctx, cfg.S3, logger)
	default:
		store, err = storage.NewLocalStore(cfg.StorageRoot, logger)
	}
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	workerPool := bot.NewPool(bot.PoolConfig{QueueSize: 32, Workers: cfg.FetchWorkers}, logger)

	orchestrator := bot.NewOrchestrator(
		transport,
		provider,
		client,
		repositories.NewPostgresUserLedger(pool),
		repositories.NewPostgresDownloadLedger(pool),
		repositories.NewPostgresStatsLedger(pool),
		store,
		session.NewMemoryStore(),
		ratelimit.New(cfg.RateLimit, cfg.RateWindow, 5*cfg.RateWindow),
		workerPool,
		metrics.New(registry),
		bot.Options{
			Formats:        cfg.Formats,
			DefaultQuality: cfg.DefaultQuality,
			MaxFileSize:    cfg.MaxFileSize,
		},
		logger,
	)

	return &dependencies{
		orchestrator: orchestrator,
		pool:         workerPool,
		admin:        handlers.Dependencies{Store: store, Registry: registry},
	}, nil
}
