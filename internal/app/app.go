package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tubefetch/bot/internal/bot"
	"github.com/tubefetch/bot/internal/config"
	"github.com/tubefetch/bot/internal/db"
	"github.com/tubefetch/bot/internal/handlers"
	"github.com/tubefetch/bot/internal/httpserver"
	"github.com/tubefetch/bot/internal/middleware"
)

// Run bootstraps the tubefetch service.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or migrate")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	transport, err := bot.NewTelegramTransport(cfg.TelegramToken, logger)
	if err != nil {
		return err
	}

	deps, err := buildDependencies(ctx, pool, cfg, transport, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps.admin)
	handler := middleware.RequestLogger(logger)(mux)
	srv := httpserver.New(cfg.AdminPort, handler)

	logger.Info("starting admin server", "port", cfg.AdminPort)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	botErr := make(chan error, 1)
	go func() {
		botErr <- transport.Consume(consumeCtx, deps.orchestrator)
	}()

	logger.Info("bot is running", "workers", cfg.FetchWorkers)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case err := <-botErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	stopConsumer()
	if err := deps.pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown", "error", err)
	}

	return srv.Shutdown(shutdownCtx)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
