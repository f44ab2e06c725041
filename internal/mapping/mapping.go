// Package mapping persists, per (source database, source table) pair, which
// destination key each migrated source key received.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

// TablePrefix starts the name of every mapping table.
const TablePrefix = "id_mapping_"

var (
	ErrInvalidTableName = errors.New("invalid mapping table name")

	validName = regexp.MustCompile(`^[a-z0-9_]{1,63}$`)
)

// Entry is one row of a mapping table.
type Entry struct {
	TableName string    `json:"table_name"`
	OldID     string    `json:"old_id"`
	NewID     string    `json:"new_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Count is the number of mapped rows of one pair.
type Count struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Rows     int64  `json:"rows"`
}

// Store addresses mapping tables inside one destination schema.
type Store struct {
	schema string
}

func NewStore(schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{schema: schema}
}

// TableName returns the mapping table of a pair, e.g. id_mapping_thierno_client.
func TableName(sourceDB, table string) (string, error) {
	name := TablePrefix + strings.ToLower(strings.TrimSpace(sourceDB)) + "_" + strings.ToLower(strings.TrimSpace(table))
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return name, nil
}

func (s *Store) ident(name string) string {
	return pgdb.Ident(s.schema, name)
}

// EnsureTable creates the pair's mapping table when missing. Concurrent first
// use is serialized with a transaction-scoped advisory lock, so q should be a
// transaction.
func (s *Store) EnsureTable(ctx context.Context, q pgdb.Querier, sourceDB, table string) error {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return err
	}
	if err := pgdb.LockXact(ctx, q, "mapping-ddl/"+s.schema+"."+name); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  table_name TEXT NOT NULL,
  old_id TEXT NOT NULL,
  new_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (table_name, old_id)
)`, s.ident(name))); err != nil {
		return fmt.Errorf("create mapping table %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the pair's mapping table has been created.
func (s *Store) Exists(ctx context.Context, q pgdb.Querier, sourceDB, table string) (bool, error) {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return false, err
	}
	return s.exists(ctx, q, name)
}

func (s *Store) exists(ctx context.Context, q pgdb.Querier, name string) (bool, error) {
	var found bool
	if err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.ident(name)).Scan(&found); err != nil {
		return false, fmt.Errorf("check mapping table %s: %w", name, err)
	}
	return found, nil
}

// Lookup returns the destination key recorded for oldID. A missing table is
// reported as a miss, not an error. Each mapping table holds one pair, so
// rows are matched on old_id alone whatever case their table_name has.
func (s *Store) Lookup(ctx context.Context, q pgdb.Querier, sourceDB, table, oldID string) (string, bool, error) {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return "", false, err
	}
	ok, err := s.exists(ctx, q, name)
	if err != nil || !ok {
		return "", false, err
	}

	var newID string
	err = q.QueryRow(ctx, fmt.Sprintf(`SELECT new_id FROM %s WHERE old_id = $1 ORDER BY id DESC LIMIT 1`, s.ident(name)),
		oldID).Scan(&newID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s in %s: %w", oldID, name, err)
	}
	return newID, true, nil
}

// Upsert records oldID → newID, replacing any previous destination key for
// oldID. New rows carry the lower-cased table name.
func (s *Store) Upsert(ctx context.Context, q pgdb.Querier, sourceDB, table, oldID, newID string) error {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`
WITH updated AS (
  UPDATE %[1]s SET new_id = $3::text WHERE old_id = $2::text RETURNING id
)
INSERT INTO %[1]s (table_name, old_id, new_id)
SELECT $1::text, $2::text, $3::text
WHERE NOT EXISTS (SELECT 1 FROM updated)
ON CONFLICT (table_name, old_id) DO UPDATE SET new_id = EXCLUDED.new_id`, s.ident(name)),
		strings.ToLower(strings.TrimSpace(table)), oldID, newID); err != nil {
		return fmt.Errorf("upsert mapping %s: %w", name, err)
	}
	return nil
}

// Clear drops every entry of the pair. It is a no-op when the table is missing.
func (s *Store) Clear(ctx context.Context, q pgdb.Querier, sourceDB, table string) error {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return err
	}
	ok, err := s.exists(ctx, q, name)
	if err != nil || !ok {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s RESTART IDENTITY`, s.ident(name))); err != nil {
		return fmt.Errorf("clear mapping %s: %w", name, err)
	}
	return nil
}

// Entries lists the pair's mapping rows, oldest first.
func (s *Store) Entries(ctx context.Context, q pgdb.Querier, sourceDB, table string) ([]Entry, error) {
	name, err := TableName(sourceDB, table)
	if err != nil {
		return nil, err
	}
	ok, err := s.exists(ctx, q, name)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := q.Query(ctx, fmt.Sprintf(`
SELECT table_name, old_id, new_id, created_at
FROM %s
ORDER BY id`, s.ident(name)))
	if err != nil {
		return nil, fmt.Errorf("list mapping %s: %w", name, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TableName, &e.OldID, &e.NewID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MappedKeys returns the set of source keys that were already transferred.
func (s *Store) MappedKeys(ctx context.Context, q pgdb.Querier, sourceDB, table string) (map[string]bool, error) {
	entries, err := s.Entries(ctx, q, sourceDB, table)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		keys[e.OldID] = true
	}
	return keys, nil
}

// Summary counts the entries of every mapping table in the schema. Table
// names are split back into database and table using the known databases;
// an unknown prefix is split at its first underscore.
func (s *Store) Summary(ctx context.Context, q pgdb.Querier, databases []string) ([]Count, error) {
	rows, err := q.Query(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_name LIKE 'id\_mapping\_%'
ORDER BY table_name`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list mapping tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Count, 0, len(names))
	for _, name := range names {
		db, table, ok := SplitTableName(name, databases)
		if !ok {
			continue
		}
		var n int64
		if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident(name))).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out = append(out, Count{Database: db, Table: table, Rows: n})
	}
	return out, nil
}

// SplitTableName is the inverse of TableName. Databases are matched longest
// first so that a database name containing an underscore still splits right.
func SplitTableName(name string, databases []string) (string, string, bool) {
	rest, ok := strings.CutPrefix(name, TablePrefix)
	if !ok || rest == "" {
		return "", "", false
	}
	known := append([]string(nil), databases...)
	sort.Slice(known, func(i, j int) bool { return len(known[i]) > len(known[j]) })
	for _, db := range known {
		if table, ok := strings.CutPrefix(rest, strings.ToLower(db)+"_"); ok && table != "" {
			return strings.ToUpper(db), strings.ToUpper(table), true
		}
	}
	db, table, ok := strings.Cut(rest, "_")
	if !ok || db == "" || table == "" {
		return "", "", false
	}
	return strings.ToUpper(db), strings.ToUpper(table), true
}
