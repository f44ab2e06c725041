package transfer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/metrics"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/resolver"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

// Request addresses one source row. KeyColumn overrides the primary key of
// single-key tables; Values carries the columns of an edit.
type Request struct {
	SourceDB      string
	Table         string
	RowKey        string
	KeyColumn     string
	ResetSequence bool
	Values        map[string]any
}

type Result struct {
	SourceDB   string   `json:"db_name"`
	Table      string   `json:"table_name"`
	OldKey     string   `json:"old_key"`
	NewKey     string   `json:"new_key,omitempty"`
	Unresolved []string `json:"unresolved_columns,omitempty"`
	Message    string   `json:"message"`
}

// target is a request checked against both live schemas.
type target struct {
	db      string
	src     schema.Table
	dst     schema.Table
	keyCols []string
	catalog *catalog.Catalog
}

func (s *Service) target(ctx context.Context, req Request) (target, error) {
	db, err := s.database(req.SourceDB)
	if err != nil {
		return target{}, err
	}
	table := strings.TrimSpace(req.Table)
	if table == "" {
		return target{}, fmt.Errorf("%w: table_name is required", ErrInvalidRequest)
	}
	src, err := s.source.Table(ctx, db, table)
	if err != nil {
		return target{}, err
	}
	cat := s.catalogFor(ctx, db)
	keyCols, err := keyColumns(cat, src, req.KeyColumn)
	if err != nil {
		return target{}, err
	}
	dst, err := schema.PostgresTable(ctx, s.pool, s.schema, src.Name)
	if err != nil {
		return target{}, err
	}
	return target{db: db, src: src, dst: dst, keyCols: keyCols, catalog: cat}, nil
}

// keyColumns picks the columns identifying a source row: a configured
// composite key, then an explicit column, then the primary key.
func keyColumns(c *catalog.Catalog, src schema.Table, keyColumn string) ([]string, error) {
	if cols := c.CompositeKey(src.Name); cols != nil {
		return canonical(src, cols)
	}
	if keyColumn = strings.TrimSpace(keyColumn); keyColumn != "" {
		return canonical(src, []string{keyColumn})
	}
	switch len(src.PrimaryKey) {
	case 1, 2:
		return append([]string(nil), src.PrimaryKey...), nil
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrNoPrimaryKey, src.Name)
	}
}

func canonical(t schema.Table, cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, name := range cols {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, t.Name, name)
		}
		out[i] = c.Name
	}
	return out, nil
}

func (t target) composite() bool { return len(t.keyCols) == 2 }

func (t target) isKeyColumn(col string) bool {
	for _, k := range t.keyCols {
		if strings.EqualFold(k, col) {
			return true
		}
	}
	return false
}

// destKeyColumns names the destination columns a mapping's new key refers to.
func (t target) destKeyColumns() ([]string, error) {
	if t.composite() {
		return canonical(t.dst, t.keyCols)
	}
	if len(t.dst.PrimaryKey) == 1 {
		return []string{t.dst.PrimaryKey[0]}, nil
	}
	return canonical(t.dst, t.keyCols)
}

// destKey splits a mapping's new key over the destination key columns.
func (t target) destKey(newKey string) ([]string, []string, error) {
	cols, err := t.destKeyColumns()
	if err != nil {
		return nil, nil, err
	}
	if len(cols) == 1 {
		return cols, []string{newKey}, nil
	}
	key, err := record.ParseKey(newKey, cols)
	if err != nil {
		return nil, nil, err
	}
	if key.Partial {
		return nil, nil, fmt.Errorf("%w: stored key %q of %s is not composite", ErrSchemaMismatch, newKey, t.src.Name)
	}
	return key.Columns, key.Values, nil
}

// newKey reads the destination key of an inserted row. Without a usable
// key column the first returned column identifies the row.
func (t target) newKey(inserted record.Row) (string, error) {
	cols, err := t.destKeyColumns()
	if err == nil {
		return record.KeyString(inserted, cols)
	}
	if inserted.Len() == 0 {
		return "", fmt.Errorf("%w: insert into %s returned no columns", ErrSchemaMismatch, t.dst.Name)
	}
	return record.KeyString(inserted, inserted.Columns[:1])
}

type mode int

const (
	forInsert mode = iota
	forUpdate
)

// missLog forwards misses to metrics and remembers the columns for the result.
type missLog struct {
	metrics *metrics.Collector
	columns []string
}

func (m *missLog) ResolutionMiss(sourceDB, table, column string) {
	m.metrics.ResolutionMiss(sourceDB, table, column)
	m.columns = append(m.columns, column)
}

// translate maps a source row onto destination columns, rewriting foreign
// keys. On insert a sequence-backed single key is left to the destination;
// on update key columns are never written.
func (s *Service) translate(ctx context.Context, q pgdb.Querier, t target, row record.Row, m mode, misses *missLog) (record.Row, error) {
	res := resolver.New(t.catalog, s.mappings, s.logger, misses)
	out := record.Row{Columns: make([]string, 0, row.Len()), Values: make([]any, 0, row.Len())}
	for i, col := range row.Columns {
		dc, ok := t.dst.Column(col)
		if !ok {
			return record.Row{}, fmt.Errorf("%w: column %s.%s has no destination counterpart", ErrSchemaMismatch, t.src.Name, col)
		}
		v := row.Values[i]
		own := !t.composite() && strings.EqualFold(col, t.keyCols[0])
		switch {
		case m == forUpdate && t.isKeyColumn(col):
			continue
		case own:
			if gk, ok := t.dst.GeneratedKey(); ok && gk.Name == dc.Name {
				continue
			}
		default:
			var err error
			if v, err = res.Resolve(ctx, q, t.db, t.src.Name, col, v); err != nil {
				return record.Row{}, err
			}
		}
		out.Columns = append(out.Columns, dc.Name)
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// editRow turns edit values into a row of canonical source columns, sorted
// by column name. Key columns cannot be edited and a column may appear once.
func editRow(t target, values map[string]any) (record.Row, error) {
	if len(values) == 0 {
		return record.Row{}, fmt.Errorf("%w: values are required", ErrInvalidRequest)
	}
	byColumn := make(map[string]any, len(values))
	for name, v := range values {
		c, ok := t.src.Column(name)
		if !ok {
			return record.Row{}, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, t.src.Name, name)
		}
		if t.isKeyColumn(c.Name) {
			return record.Row{}, fmt.Errorf("%w: key column %s cannot be edited", ErrInvalidRequest, c.Name)
		}
		if _, dup := byColumn[c.Name]; dup {
			return record.Row{}, fmt.Errorf("%w: column %s given more than once", ErrInvalidRequest, c.Name)
		}
		byColumn[c.Name] = v
	}

	names := make([]string, 0, len(byColumn))
	for name := range byColumn {
		names = append(names, name)
	}
	sort.Strings(names)

	row := record.Row{Columns: names, Values: make([]any, 0, len(names))}
	for _, name := range names {
		row.Values = append(row.Values, byColumn[name])
	}
	return row, nil
}
