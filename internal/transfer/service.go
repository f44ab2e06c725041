// Package transfer moves single rows from a source database into the
// destination schema, keeping foreign keys pointed at migrated rows.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/mapping"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/metrics"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/sequence"
)

// Source is the read side of the legacy databases, plus the single write
// used to mirror an edit.
type Source interface {
	Ping(ctx context.Context) error
	Databases(ctx context.Context) ([]string, error)
	Tables(ctx context.Context, database string) ([]string, error)
	Table(ctx context.Context, database, table string) (schema.Table, error)
	ForeignKeys(ctx context.Context, database string) ([]catalog.Relation, error)
	FetchRow(ctx context.Context, t schema.Table, key record.Key) (record.Row, error)
	UpdateRow(ctx context.Context, t schema.Table, key record.Key, values record.Row) (int64, error)
}

type Options struct {
	Schema           string
	Databases        []string
	MaxConcurrent    int
	OperationTimeout time.Duration
	Catalog          *catalog.Catalog
	Metrics          *metrics.Collector
	Logger           *slog.Logger
	Tracer           trace.Tracer
}

type Service struct {
	source    Source
	pool      *pgxpool.Pool
	schema    string
	databases []string
	timeout   time.Duration
	sem       *semaphore.Weighted
	catalog   *catalog.Catalog
	mappings  *mapping.Store
	sequences *sequence.Manager
	metrics   *metrics.Collector
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	catalogs map[string]*catalog.Catalog
}

func New(src Source, pool *pgxpool.Pool, opts Options) *Service {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 30 * time.Second
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.GetTracerProvider().Tracer("migrator.transfer")
	}
	return &Service{
		source:    src,
		pool:      pool,
		schema:    opts.Schema,
		databases: append([]string(nil), opts.Databases...),
		timeout:   opts.OperationTimeout,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		catalog:   opts.Catalog,
		mappings:  mapping.NewStore(opts.Schema),
		sequences: sequence.NewManager(opts.Schema, opts.Logger),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		catalogs:  map[string]*catalog.Catalog{},
	}
}

// run gives every operation a deadline, a concurrency slot, a span and a
// metrics observation.
func (s *Service) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "transfer."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		err = fmt.Errorf("%w: waiting for a free slot: %w", ErrTransaction, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer s.sem.Release(1)
	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	start := time.Now()
	err := classify(fn(ctx))
	s.metrics.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func requestAttrs(sourceDB, table, rowKey string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("migrator.source_db", sourceDB),
		attribute.String("migrator.table", table),
		attribute.String("migrator.row_key", rowKey),
	}
}

// database returns the configured spelling of name, which is what the
// source server expects.
func (s *Service) database(name string) (string, error) {
	name = strings.TrimSpace(name)
	for _, db := range s.databases {
		if strings.EqualFold(db, name) {
			return db, nil
		}
	}
	return "", fmt.Errorf("%w: database %q is not allowed", ErrInvalidRequest, name)
}

// catalogFor adds the source database's own foreign key constraints to the
// configured catalog. Introspection failures fall back to the configured
// catalog and are retried on the next call.
func (s *Service) catalogFor(ctx context.Context, db string) *catalog.Catalog {
	s.mu.Lock()
	c, ok := s.catalogs[db]
	s.mu.Unlock()
	if ok {
		return c
	}

	rels, err := s.source.ForeignKeys(ctx, db)
	if err != nil {
		s.logger.Warn("foreign key introspection failed, using declared relations", "source_db", db, "error", err)
		return s.catalog
	}
	c = s.catalog.With(rels)
	s.mu.Lock()
	s.catalogs[db] = c
	s.mu.Unlock()
	return c
}

// pairLock serializes every write flow of one (database, table) pair.
func pairLock(db, table string) string {
	return "transfer/" + strings.ToLower(db) + "/" + strings.ToLower(table)
}

func (s *Service) Ping(ctx context.Context) error {
	var errs []error
	if err := s.source.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	if s.pool == nil {
		errs = append(errs, errors.New("destination: not connected"))
	} else if err := s.pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("destination: %w", err))
	}
	return errors.Join(errs...)
}
