package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/app"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/audit"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/config"
	httpserver "github.com/diarrand09/Migration-Mysql-to-Postgre/internal/http"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireSecret(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	_ = logStartupEvent(ctx, a.Pool, logger, cfg)

	nav := httpserver.NewNavigator(cfg.SecretKeyBytes, cfg.CookieSecure)
	server := httpserver.New(cfg, logger, a.Transfer, nav, a.Metrics)

	if err := server.Start(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func logStartupEvent(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, cfg config.Config) error {
	_, err := audit.LogEvent(ctx, pool, logger, audit.Event{
		Action: audit.ActionServerStarted,
		Payload: map[string]any{
			"http_addr": cfg.HTTPAddress,
			"databases": cfg.Source.Databases,
			"ts":        time.Now().UTC(),
		},
	})
	return err
}
