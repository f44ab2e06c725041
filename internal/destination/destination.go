// Package destination writes rows into the consolidated PostgreSQL schema.
// Every identifier comes from an introspected schema.Table and is quoted.
package destination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

var ErrNoKey = errors.New("no key columns given")

func ident(t schema.Table) string {
	return pgdb.Ident(t.Schema, t.Name)
}

// IsEmpty reports whether the table holds no rows.
func IsEmpty(ctx context.Context, q pgdb.Querier, t schema.Table) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, ident(t))).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s empty: %w", t.Name, err)
	}
	return !exists, nil
}

// Truncate empties the table, restarts its identities and cascades to
// referencing tables.
func Truncate(ctx context.Context, q pgdb.Querier, t schema.Table) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s RESTART IDENTITY CASCADE`, ident(t))); err != nil {
		return fmt.Errorf("truncate %s: %w", t.Name, err)
	}
	return nil
}

// Insert writes row and returns the stored row as the database sees it.
func Insert(ctx context.Context, q pgdb.Querier, t schema.Table, row record.Row) (record.Row, error) {
	cols, err := columnList(t, row.Columns)
	if err != nil {
		return record.Row{}, err
	}

	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf(`INSERT INTO %s DEFAULT VALUES RETURNING *`, ident(t))
	} else {
		placeholders := make([]string, len(cols))
		for i := range cols {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		}
		sql = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
			ident(t), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}

	rows, err := q.Query(ctx, sql, row.Values...)
	if err != nil {
		return record.Row{}, fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return record.Row{}, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		return record.Row{}, fmt.Errorf("insert into %s returned no row", t.Name)
	}
	values, err := rows.Values()
	if err != nil {
		return record.Row{}, fmt.Errorf("read inserted row: %w", err)
	}
	fields := rows.FieldDescriptions()
	out := record.Row{Columns: make([]string, len(fields)), Values: values}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}
	rows.Close()
	return out, rows.Err()
}

// Update overwrites the given columns of the row whose key columns, compared
// as text, equal keyValues. It returns the number of rows touched.
func Update(ctx context.Context, q pgdb.Querier, t schema.Table, row record.Row, keyColumns, keyValues []string) (int64, error) {
	if len(row.Columns) == 0 {
		return 0, nil
	}
	cols, err := columnList(t, row.Columns)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	where, args, err := keyClause(t, keyColumns, keyValues, len(cols)+1)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, ident(t), strings.Join(sets, ", "), where),
		append(append([]any(nil), row.Values...), args...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", t.Name, err)
	}
	return tag.RowsAffected(), nil
}

// Exists reports whether a row matches keyValues.
func Exists(ctx context.Context, q pgdb.Querier, t schema.Table, keyColumns, keyValues []string) (bool, error) {
	sql, args, err := existsQuery(t, keyColumns, keyValues)
	if err != nil {
		return false, err
	}
	var found bool
	if err := q.QueryRow(ctx, sql, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("look up %s row: %w", t.Name, err)
	}
	return found, nil
}

func existsQuery(t schema.Table, keyColumns, keyValues []string) (string, []any, error) {
	where, args, err := keyClause(t, keyColumns, keyValues, 1)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s)`, ident(t), where), args, nil
}

// Delete removes the row matching keyValues and returns the number of rows removed.
func Delete(ctx context.Context, q pgdb.Querier, t schema.Table, keyColumns, keyValues []string) (int64, error) {
	where, args, err := keyClause(t, keyColumns, keyValues, 1)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, ident(t), where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.Name, err)
	}
	return tag.RowsAffected(), nil
}

func columnList(t schema.Table, names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, t.Name, name)
		}
		out[i] = pgdb.Ident(c.Name)
	}
	return out, nil
}

func keyClause(t schema.Table, keyColumns, keyValues []string, first int) (string, []any, error) {
	if len(keyColumns) == 0 || len(keyColumns) != len(keyValues) {
		return "", nil, ErrNoKey
	}
	cols, err := columnList(t, keyColumns)
	if err != nil {
		return "", nil, err
	}
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("%s::text = $%d", c, first+i)
		args[i] = keyValues[i]
	}
	return strings.Join(conds, " AND "), args, nil
}
