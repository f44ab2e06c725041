package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQLDatabases lists the databases of the server.
func MySQLDatabases(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// MySQLTables lists the base tables of one database.
func MySQLTables(ctx context.Context, db *sql.DB, database string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema=? AND table_type='BASE TABLE'
ORDER BY table_name`, database)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// MySQLTable introspects a single table. The table name is matched
// case-insensitively and returned in its stored spelling.
func MySQLTable(ctx context.Context, db *sql.DB, database, table string) (Table, error) {
	var name string
	err := db.QueryRowContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema=? AND LOWER(table_name)=LOWER(?) AND table_type='BASE TABLE'`, database, table).Scan(&name)
	if err == sql.ErrNoRows {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, table)
	}
	if err != nil {
		return Table{}, err
	}
	result := newTable(database, name)

	colsRows, err := db.QueryContext(ctx, `
SELECT column_name, column_type, is_nullable, column_default, extra
FROM information_schema.columns
WHERE table_schema=? AND table_name=?
ORDER BY ordinal_position`, database, name)
	if err != nil {
		return result, err
	}
	defer colsRows.Close()

	for colsRows.Next() {
		var col, dataType, nullable, extra string
		var def sql.NullString
		if err := colsRows.Scan(&col, &dataType, &nullable, &def, &extra); err != nil {
			return result, err
		}
		result.addColumn(Column{
			Name:         col,
			DataType:     dataType,
			IsNullable:   strings.EqualFold(nullable, "YES"),
			DefaultValue: def,
			IsIdentity:   strings.Contains(strings.ToLower(extra), "auto_increment"),
		})
	}
	if err := colsRows.Err(); err != nil {
		return result, err
	}

	pkRows, err := db.QueryContext(ctx, `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
 ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.table_schema=? AND tc.table_name=? AND tc.constraint_type='PRIMARY KEY'
ORDER BY kcu.ordinal_position`, database, name)
	if err != nil {
		return result, err
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return result, err
		}
		result.PrimaryKey = append(result.PrimaryKey, col)
	}
	return result, pkRows.Err()
}

// ForeignKey is a constraint read from the source engine.
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
}

// MySQLForeignKeys returns every single-column foreign key constraint of a database.
func MySQLForeignKeys(ctx context.Context, db *sql.DB, database string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
SELECT kcu.table_name, kcu.column_name, kcu.referenced_table_name, kcu.referenced_column_name, kcu.constraint_name
FROM information_schema.key_column_usage kcu
WHERE kcu.table_schema = ?
  AND kcu.referenced_table_name IS NOT NULL
ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`, database)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
