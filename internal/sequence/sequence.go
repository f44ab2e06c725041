// Package sequence restarts the identifier generators of destination tables.
package sequence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

type Manager struct {
	schema string
	logger *slog.Logger
}

func NewManager(schemaName string, logger *slog.Logger) *Manager {
	if schemaName == "" {
		schemaName = "public"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{schema: schemaName, logger: logger}
}

// ResetOne makes the sequence behind table's primary key hand out 1 next.
// It returns false when the table has no primary key or no backing sequence.
func (m *Manager) ResetOne(ctx context.Context, q pgdb.Querier, table string) (bool, error) {
	qualified := pgdb.Ident(m.schema, table)

	var found bool
	if err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, qualified).Scan(&found); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	if !found {
		return false, fmt.Errorf("%w: %s.%s", schema.ErrTableNotFound, m.schema, table)
	}

	rows, err := q.Query(ctx, `
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY a.attnum`, qualified)
	if err != nil {
		return false, fmt.Errorf("primary key of %s: %w", table, err)
	}
	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			rows.Close()
			return false, err
		}
		pk = append(pk, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	if len(pk) == 0 {
		m.logger.Info("no primary key, sequence left alone", "table", table)
		return false, nil
	}

	for _, col := range pk {
		var seq *string
		if err := q.QueryRow(ctx, `SELECT pg_get_serial_sequence($1, $2)`, qualified, col).Scan(&seq); err != nil {
			return false, fmt.Errorf("sequence of %s.%s: %w", table, col, err)
		}
		if seq == nil {
			continue
		}
		if err := restart(ctx, q, *seq); err != nil {
			return false, err
		}
		m.logger.Info("sequence reset", "table", table, "column", col, "sequence", *seq)
		return true, nil
	}
	m.logger.Info("no sequence behind primary key", "table", table)
	return false, nil
}

// ResetAll restarts every sequence of the schema except those owned by
// mapping tables, and returns how many were reset.
func (m *Manager) ResetAll(ctx context.Context, q pgdb.Querier) (int, error) {
	rows, err := q.Query(ctx, `
SELECT c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_depend d ON d.objid = c.oid AND d.classid = 'pg_class'::regclass AND d.deptype IN ('a', 'i')
LEFT JOIN pg_class owner ON owner.oid = d.refobjid
WHERE c.relkind = 'S'
  AND n.nspname = $1
  AND (owner.relname IS NULL OR owner.relname NOT LIKE 'id\_mapping\_%')
ORDER BY c.relname`, m.schema)
	if err != nil {
		return 0, fmt.Errorf("list sequences: %w", err)
	}
	var seqs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}
		seqs = append(seqs, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, name := range seqs {
		if err := restart(ctx, q, pgdb.Ident(m.schema, name)); err != nil {
			return 0, err
		}
	}
	m.logger.Info("sequences reset", "schema", m.schema, "count", len(seqs))
	return len(seqs), nil
}

func restart(ctx context.Context, q pgdb.Querier, seq string) error {
	if _, err := q.Exec(ctx, `SELECT setval($1::regclass, 1, false)`, seq); err != nil {
		return fmt.Errorf("restart %s: %w", seq, err)
	}
	return nil
}
