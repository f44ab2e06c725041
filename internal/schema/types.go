package schema

import (
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrNoPrimaryKey   = errors.New("table has no primary key")
)

// Table describes a table and its columns as introspected from a live catalog.
// It doubles as the allow-list for every identifier embedded in a statement.
type Table struct {
	Schema     string
	Name       string
	Columns    map[string]Column
	Order      []string
	PrimaryKey []string
}

// Column describes a table column.
type Column struct {
	Name         string
	DataType     string
	IsNullable   bool
	DefaultValue sql.NullString
	IsIdentity   bool
}

// Generated reports whether the database fills the column on insert from a sequence.
func (c Column) Generated() bool {
	if c.IsIdentity {
		return true
	}
	if !c.DefaultValue.Valid {
		return false
	}
	def := strings.ToLower(c.DefaultValue.String)
	return strings.HasPrefix(def, "nextval(") || strings.Contains(def, "auto_increment")
}

// Column finds a column by name, case-insensitively, and returns its canonical form.
func (t Table) Column(name string) (Column, bool) {
	if c, ok := t.Columns[name]; ok {
		return c, true
	}
	for key, c := range t.Columns {
		if strings.EqualFold(key, name) {
			return c, true
		}
	}
	return Column{}, false
}

// GeneratedKey returns the single primary key column when the database generates it.
func (t Table) GeneratedKey() (Column, bool) {
	if len(t.PrimaryKey) != 1 {
		return Column{}, false
	}
	c, ok := t.Column(t.PrimaryKey[0])
	if !ok || !c.Generated() {
		return Column{}, false
	}
	return c, true
}

func newTable(schemaName, name string) Table {
	return Table{Schema: schemaName, Name: name, Columns: map[string]Column{}}
}

func (t *Table) addColumn(c Column) {
	t.Columns[c.Name] = c
	t.Order = append(t.Order, c.Name)
}
