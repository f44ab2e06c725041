// Package app wires the stores, the transfer service and its collaborators
// from a loaded configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/config"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/metrics"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/migrate"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/source"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/tracing"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/transfer"
)

type App struct {
	Pool     *pgxpool.Pool
	Source   *source.MySQL
	Catalog  *catalog.Catalog
	Metrics  *metrics.Collector
	Transfer *transfer.Service
	Tracing  *tracing.Provider

	logger *slog.Logger
}

// Open connects to both stores, applies the bookkeeping migrations and
// builds the transfer service. Close must be called on success.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.RelationsFile)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("start tracing: %w", err)
	}
	if tp.Enabled() {
		logger.Info("span export enabled", "endpoint", cfg.Tracing.Endpoint, "service", cfg.Tracing.ServiceName)
	}

	pool, err := pgdb.Connect(ctx, cfg.Destination.PostgresDSN(), pgdb.PoolOptions{
		MaxConns:         cfg.Destination.MaxConns,
		StatementTimeout: cfg.Transfer.StatementTimeout,
	})
	if err != nil {
		shutdownTracing(tp, logger)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := migrate.New(pool, logger).Up(ctx); err != nil {
		pool.Close()
		shutdownTracing(tp, logger)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	src, err := source.Open(cfg.Source.MySQLDSN(cfg.Transfer.StatementTimeout), cfg.Source.MaxOpenConns)
	if err != nil {
		pool.Close()
		shutdownTracing(tp, logger)
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	m := metrics.New()
	svc := transfer.New(src, pool, transfer.Options{
		Schema:           cfg.Destination.Schema,
		Databases:        cfg.Source.Databases,
		MaxConcurrent:    cfg.Transfer.MaxConcurrent,
		OperationTimeout: cfg.Transfer.OperationTimeout,
		Catalog:          cat,
		Metrics:          m,
		Logger:           logger,
		Tracer:           tp.Tracer(),
	})

	return &App{
		Pool:     pool,
		Source:   src,
		Catalog:  cat,
		Metrics:  m,
		Transfer: svc,
		Tracing:  tp,
		logger:   logger,
	}, nil
}

// Close releases both stores and flushes pending spans.
func (a *App) Close() {
	_ = a.Source.Close()
	a.Pool.Close()
	shutdownTracing(a.Tracing, a.logger)
}

func shutdownTracing(tp *tracing.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn("span flush failed", "error", err)
	}
}
