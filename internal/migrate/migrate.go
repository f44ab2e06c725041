// Package migrate applies the migrator's own bookkeeping schema to the
// destination database.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/migrations"
)

const versionTable = "transfer_schema_migrations"

type Runner struct {
	pool   *pgxpool.Pool
	logger Logger
	fs     fs.FS
}

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

func New(pool *pgxpool.Pool, logger Logger) *Runner {
	return &Runner{
		pool:   pool,
		logger: logger,
		fs:     migrations.FS(),
	}
}

// Up applies every migration not yet recorded. Several processes may start
// at once; each migration is applied under an advisory lock and the version
// is re-checked once the lock is held.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}

	files, err := fs.Glob(r.fs, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version, name, err := parseVersion(file)
		if err != nil {
			return err
		}
		body, err := fs.ReadFile(r.fs, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		applied, err := r.apply(ctx, version, name, string(body))
		if err != nil {
			if r.logger != nil {
				r.logger.Error("migration failed", "version", version, "name", name, "error", err)
			}
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		if applied && r.logger != nil {
			r.logger.Info("migration applied", "version", version, "name", name)
		}
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, version int64, name string, body string) (bool, error) {
	applied := false
	err := pgdb.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := pgdb.LockXact(ctx, tx, versionTable); err != nil {
			return err
		}
		var done bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+versionTable+` WHERE version = $1)`, version).Scan(&done); err != nil {
			return fmt.Errorf("check version: %w", err)
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, body); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO `+versionTable+`(version, name) VALUES ($1, $2)`, version, name); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *Runner) ensureTable(ctx context.Context) error {
	return pgdb.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := pgdb.LockXact(ctx, tx, versionTable); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+versionTable+` (
  version BIGINT PRIMARY KEY,
  name    TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
		return err
	})
}

func parseVersion(path string) (int64, string, error) {
	base := filepath.Base(path)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("invalid migration filename: %s", base)
	}
	version, err := strconv.ParseInt(strings.TrimSuffix(parts[0], ".sql"), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid migration version in %s: %w", base, err)
	}
	name := strings.TrimSuffix(parts[1], ".sql")
	return version, name, nil
}
