// Package source reads rows from the legacy MySQL databases.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

var ErrRowNotFound = errors.New("source row not found")

// MySQL is one server hosting every source database. Statements always
// qualify tables with their database, so the DSN selects none.
type MySQL struct {
	db *sql.DB
}

func Open(dsn string, maxOpenConns int) (*MySQL, error) {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 5
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(maxOpenConns)
	return &MySQL{db: db}, nil
}

func (m *MySQL) Close() error { return m.db.Close() }

func (m *MySQL) Ping(ctx context.Context) error { return m.db.PingContext(ctx) }

func (m *MySQL) Databases(ctx context.Context) ([]string, error) {
	return schema.MySQLDatabases(ctx, m.db)
}

func (m *MySQL) Tables(ctx context.Context, database string) ([]string, error) {
	return schema.MySQLTables(ctx, m.db, database)
}

func (m *MySQL) Table(ctx context.Context, database, table string) (schema.Table, error) {
	return schema.MySQLTable(ctx, m.db, database, table)
}

// ForeignKeys returns the database's foreign key constraints as catalog relations.
func (m *MySQL) ForeignKeys(ctx context.Context, database string) ([]catalog.Relation, error) {
	fks, err := schema.MySQLForeignKeys(ctx, m.db, database)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Relation, 0, len(fks))
	for _, fk := range fks {
		out = append(out, catalog.Relation{
			Table:            fk.Table,
			Column:           fk.Column,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
		})
	}
	return out, nil
}

// FetchRow reads the row addressed by key. A partial composite key matches
// the first row found.
func (m *MySQL) FetchRow(ctx context.Context, t schema.Table, key record.Key) (record.Row, error) {
	query, args, err := selectSQL(t, key)
	if err != nil {
		return record.Row{}, err
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return record.Row{}, fmt.Errorf("fetch %s.%s: %w", t.Schema, t.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return record.Row{}, err
		}
		return record.Row{}, fmt.Errorf("%w: %s.%s %s", ErrRowNotFound, t.Schema, t.Name, key.String())
	}
	values := make([]any, len(t.Order))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return record.Row{}, err
	}
	for i, col := range t.Order {
		values[i] = normalize(t.Columns[col], values[i])
	}
	return record.Row{Columns: append([]string(nil), t.Order...), Values: values}, rows.Err()
}

// UpdateRow writes values into the row addressed by a full key.
func (m *MySQL) UpdateRow(ctx context.Context, t schema.Table, key record.Key, values record.Row) (int64, error) {
	query, args, err := updateSQL(t, key, values)
	if err != nil {
		return 0, err
	}
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s.%s: %w", t.Schema, t.Name, err)
	}
	return res.RowsAffected()
}

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualified(t schema.Table) string {
	return quote(t.Schema) + "." + quote(t.Name)
}

func selectSQL(t schema.Table, key record.Key) (string, []any, error) {
	if len(t.Order) == 0 {
		return "", nil, fmt.Errorf("%w: %s.%s has no columns", schema.ErrTableNotFound, t.Schema, t.Name)
	}
	cols := make([]string, len(t.Order))
	for i, c := range t.Order {
		cols[i] = quote(c)
	}
	where, args, err := keyClause(t, key)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", strings.Join(cols, ", "), qualified(t), where), args, nil
}

func updateSQL(t schema.Table, key record.Key, values record.Row) (string, []any, error) {
	if key.Partial {
		return "", nil, fmt.Errorf("update needs the full key of %s", t.Name)
	}
	if values.Len() == 0 {
		return "", nil, errors.New("no values to update")
	}
	sets := make([]string, 0, values.Len())
	args := make([]any, 0, values.Len()+len(key.Values))
	for i, name := range values.Columns {
		c, ok := t.Column(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, t.Name, name)
		}
		sets = append(sets, quote(c.Name)+" = ?")
		args = append(args, values.Values[i])
	}
	where, keyArgs, err := keyClause(t, key)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", qualified(t), strings.Join(sets, ", "), where), append(args, keyArgs...), nil
}

func keyClause(t schema.Table, key record.Key) (string, []any, error) {
	if len(key.Columns) == 0 || len(key.Columns) != len(key.Values) {
		return "", nil, record.ErrEmptyKey
	}
	conds := make([]string, len(key.Columns))
	args := make([]any, len(key.Columns))
	for i, name := range key.Columns {
		c, ok := t.Column(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, t.Name, name)
		}
		conds[i] = quote(c.Name) + " = ?"
		args[i] = key.Values[i]
	}
	return strings.Join(conds, " AND "), args, nil
}

// normalize turns driver byte slices into strings, except for binary columns.
func normalize(c schema.Column, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	dt := strings.ToLower(c.DataType)
	if strings.Contains(dt, "blob") || strings.Contains(dt, "binary") {
		return append([]byte(nil), b...)
	}
	return string(b)
}
