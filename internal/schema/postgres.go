package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

// PostgresTable introspects one destination table. Destination names are the
// lower-cased source names.
func PostgresTable(ctx context.Context, q pgdb.Querier, schemaName, table string) (Table, error) {
	if schemaName == "" {
		schemaName = "public"
	}
	var name string
	err := q.QueryRow(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema=$1 AND table_name=$2 AND table_type='BASE TABLE'`, schemaName, strings.ToLower(table)).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, schemaName, strings.ToLower(table))
	}
	if err != nil {
		return Table{}, err
	}
	result := newTable(schemaName, name)

	colsRows, err := q.Query(ctx, `
SELECT column_name, data_type, is_nullable, column_default, is_identity
FROM information_schema.columns
WHERE table_schema=$1 AND table_name=$2
ORDER BY ordinal_position`, schemaName, name)
	if err != nil {
		return result, err
	}
	defer colsRows.Close()

	for colsRows.Next() {
		var col, dataType, nullable, identity string
		var def sql.NullString
		if err := colsRows.Scan(&col, &dataType, &nullable, &def, &identity); err != nil {
			return result, err
		}
		result.addColumn(Column{
			Name:         col,
			DataType:     dataType,
			IsNullable:   strings.EqualFold(nullable, "YES"),
			DefaultValue: def,
			IsIdentity:   strings.EqualFold(identity, "YES"),
		})
	}
	if err := colsRows.Err(); err != nil {
		return result, err
	}

	pkRows, err := q.Query(ctx, `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.table_schema=$1 AND tc.table_name=$2 AND tc.constraint_type='PRIMARY KEY'
ORDER BY kcu.ordinal_position`, schemaName, name)
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
