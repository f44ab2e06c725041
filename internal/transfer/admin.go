package transfer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/audit"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/diff"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/intent"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/mapping"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

// ResetSequence restarts the sequence behind a destination table's key. It
// reports false when the table has no sequence-backed key.
func (s *Service) ResetSequence(ctx context.Context, table string) (bool, error) {
	var reset bool
	err := s.run(ctx, "reset_sequence", []attribute.KeyValue{attribute.String("migrator.table", table)}, func(ctx context.Context) error {
		table = strings.ToLower(strings.TrimSpace(table))
		if table == "" {
			return fmt.Errorf("%w: table is required", ErrInvalidRequest)
		}
		dst, err := schema.PostgresTable(ctx, s.pool, s.schema, table)
		if err != nil {
			return err
		}
		err = pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			var err error
			reset, err = s.sequences.ResetOne(ctx, tx, dst.Name)
			return err
		})
		if err != nil {
			return err
		}
		s.audit(ctx, audit.Event{Action: audit.ActionResetSequence, Table: dst.Name, Payload: map[string]any{"reset": reset}})
		return nil
	})
	return reset, err
}

// ResetAllSequences restarts every destination sequence except the ones
// numbering mapping rows.
func (s *Service) ResetAllSequences(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, "reset_all_sequences", nil, func(ctx context.Context) error {
		err := pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			var err error
			n, err = s.sequences.ResetAll(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		s.audit(ctx, audit.Event{Action: audit.ActionResetAll, Payload: map[string]any{"count": n}})
		return nil
	})
	return n, err
}

// ClearMapping forgets every transferred key of a pair. Destination rows stay.
func (s *Service) ClearMapping(ctx context.Context, sourceDB, table string) error {
	return s.run(ctx, "clear_mapping", requestAttrs(sourceDB, table, ""), func(ctx context.Context) error {
		db, err := s.database(sourceDB)
		if err != nil {
			return err
		}
		table = strings.TrimSpace(table)
		if table == "" {
			return fmt.Errorf("%w: table is required", ErrInvalidRequest)
		}
		err = pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			if err := pgdb.LockXact(ctx, tx, pairLock(db, table)); err != nil {
				return err
			}
			return s.mappings.Clear(ctx, tx, db, table)
		})
		if err != nil {
			return err
		}
		s.logger.Info("mapping cleared", "source_db", db, "table", table)
		s.audit(ctx, audit.Event{Action: audit.ActionClearMapping, SourceDB: db, Table: strings.ToUpper(table)})
		return nil
	})
}

// Status counts transferred rows per database and table.
func (s *Service) Status(ctx context.Context) ([]mapping.Count, error) {
	var out []mapping.Count
	err := s.run(ctx, "status", nil, func(ctx context.Context) error {
		var err error
		out, err = s.mappings.Summary(ctx, s.pool, s.databases)
		return err
	})
	return out, err
}

// MappedKeys lists the source keys of a table that were already transferred.
func (s *Service) MappedKeys(ctx context.Context, sourceDB, table string) ([]string, error) {
	var out []string
	err := s.run(ctx, "mapped_keys", requestAttrs(sourceDB, table, ""), func(ctx context.Context) error {
		db, err := s.database(sourceDB)
		if err != nil {
			return err
		}
		keys, err := s.mappings.MappedKeys(ctx, s.pool, db, table)
		if err != nil {
			return err
		}
		out = make([]string, 0, len(keys))
		for k := range keys {
			out = append(out, k)
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

// PendingEdits lists edits that did not reach both stores.
func (s *Service) PendingEdits(ctx context.Context, limit int) ([]intent.Intent, error) {
	var out []intent.Intent
	err := s.run(ctx, "pending_edits", nil, func(ctx context.Context) error {
		var err error
		out, err = intent.Open(ctx, s.pool, limit)
		return err
	})
	return out, err
}

// Databases returns the allowed databases that exist on the source server,
// in configured order.
func (s *Service) Databases(ctx context.Context) ([]string, error) {
	var out []string
	err := s.run(ctx, "databases", nil, func(ctx context.Context) error {
		present, err := s.source.Databases(ctx)
		if err != nil {
			return err
		}
		out = []string{}
		for _, db := range s.databases {
			for _, p := range present {
				if strings.EqualFold(db, p) {
					out = append(out, db)
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// Tables lists a source database's tables, referenced tables first.
func (s *Service) Tables(ctx context.Context, sourceDB string) ([]string, error) {
	var out []string
	err := s.run(ctx, "tables", requestAttrs(sourceDB, "", ""), func(ctx context.Context) error {
		db, err := s.database(sourceDB)
		if err != nil {
			return err
		}
		tables, err := s.source.Tables(ctx, db)
		if err != nil {
			return err
		}
		out = s.catalogFor(ctx, db).Order(tables)
		return nil
	})
	return out, err
}

// Compare reports how a source table and its destination counterpart
// differ, so an operator can check a table before moving rows.
func (s *Service) Compare(ctx context.Context, sourceDB, table string) (diff.TableDiff, error) {
	var out diff.TableDiff
	err := s.run(ctx, "compare", requestAttrs(sourceDB, table, ""), func(ctx context.Context) error {
		db, err := s.database(sourceDB)
		if err != nil {
			return err
		}
		table = strings.TrimSpace(table)
		if table == "" {
			return fmt.Errorf("%w: table_name is required", ErrInvalidRequest)
		}
		src, err := s.source.Table(ctx, db, table)
		if err != nil {
			return err
		}
		dst, err := schema.PostgresTable(ctx, s.pool, s.schema, src.Name)
		if err != nil {
			return err
		}
		out = diff.Compare(src, dst)
		return nil
	})
	return out, err
}
