// Package resolver rewrites source foreign key values into destination keys.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
)

// Lookup is the read side of the mapping store.
type Lookup interface {
	Lookup(ctx context.Context, q pgdb.Querier, sourceDB, table, oldID string) (string, bool, error)
}

// MissRecorder counts values that had no mapping yet.
type MissRecorder interface {
	ResolutionMiss(sourceDB, table, column string)
}

type Resolver struct {
	catalog *catalog.Catalog
	lookup  Lookup
	logger  *slog.Logger
	misses  MissRecorder
}

func New(c *catalog.Catalog, lookup Lookup, logger *slog.Logger, misses MissRecorder) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: c, lookup: lookup, logger: logger, misses: misses}
}

// Resolve returns the destination value for table.column. Values of columns
// without a relation, and values whose referenced row was not migrated yet,
// are returned unchanged. Only storage errors are reported.
func (r *Resolver) Resolve(ctx context.Context, q pgdb.Querier, sourceDB, table, column string, oldValue any) (any, error) {
	if oldValue == nil {
		return nil, nil
	}
	target, origin, ok := r.catalog.Resolve(table, column)
	if !ok {
		return oldValue, nil
	}

	oldID := record.FormatValue(oldValue)
	newID, found, err := r.lookup.Lookup(ctx, q, sourceDB, target.Table, oldID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s=%s: %w", table, column, oldID, err)
	}
	if !found {
		r.logger.Warn("foreign key not migrated yet, keeping source value",
			"source_db", sourceDB,
			"table", table,
			"column", column,
			"referenced_table", target.Table,
			"origin", string(origin),
			"value", oldID,
		)
		if r.misses != nil {
			r.misses.ResolutionMiss(sourceDB, table, column)
		}
		return oldValue, nil
	}
	return coerce(oldValue, newID), nil
}

// coerce keeps integer values integers so they bind to integer columns.
func coerce(oldValue any, newID string) any {
	switch oldValue.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		if n, err := strconv.ParseInt(newID, 10, 64); err == nil {
			return n
		}
	}
	return newID
}
