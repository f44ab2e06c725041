package transfer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/source"
)

// fakeSource is an in-memory stand-in for the MySQL server.
type fakeSource struct {
	mu        sync.Mutex
	tables    map[string]*fakeTable
	fks       []catalog.Relation
	failWrite error
	writes    int
}

type fakeTable struct {
	def  schema.Table
	rows [][]any
}

func newFakeSource() *fakeSource {
	return &fakeSource{tables: map[string]*fakeTable{}}
}

func tableKey(db, table string) string {
	return strings.ToUpper(db) + "/" + strings.ToUpper(table)
}

// addTable declares a table; the first column is the primary key unless pk is given.
func (f *fakeSource) addTable(db, name string, columns []string, pk ...string) {
	def := schema.Table{Schema: db, Name: name, Columns: map[string]schema.Column{}}
	for _, c := range columns {
		def.Columns[c] = schema.Column{Name: c, DataType: "int"}
		def.Order = append(def.Order, c)
	}
	if len(pk) == 0 {
		pk = columns[:1]
	}
	def.PrimaryKey = pk
	f.tables[tableKey(db, name)] = &fakeTable{def: def}
}

func (f *fakeSource) addRow(db, table string, values ...any) {
	t := f.tables[tableKey(db, table)]
	t.rows = append(t.rows, values)
}

func (f *fakeSource) Ping(context.Context) error { return nil }

func (f *fakeSource) Databases(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, t := range f.tables {
		if !seen[t.def.Schema] {
			seen[t.def.Schema] = true
			out = append(out, t.def.Schema)
		}
	}
	return out, nil
}

func (f *fakeSource) Tables(_ context.Context, db string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.tables {
		if strings.EqualFold(t.def.Schema, db) {
			out = append(out, t.def.Name)
		}
	}
	return out, nil
}

func (f *fakeSource) Table(_ context.Context, db, table string) (schema.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableKey(db, table)]
	if !ok {
		return schema.Table{}, fmt.Errorf("%w: %s.%s", schema.ErrTableNotFound, db, table)
	}
	return t.def, nil
}

func (f *fakeSource) ForeignKeys(context.Context, string) ([]catalog.Relation, error) {
	return f.fks, nil
}

func (f *fakeSource) find(t *fakeTable, key record.Key) int {
	for i, row := range t.rows {
		match := true
		for j, col := range key.Columns {
			v, _ := (record.Row{Columns: t.def.Order, Values: row}).Get(col)
			if record.FormatValue(v) != key.Values[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (f *fakeSource) FetchRow(_ context.Context, t schema.Table, key record.Key) (record.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := f.tables[tableKey(t.Schema, t.Name)]
	i := f.find(ft, key)
	if i < 0 {
		return record.Row{}, fmt.Errorf("%w: %s %s", source.ErrRowNotFound, t.Name, key.String())
	}
	return record.Row{
		Columns: append([]string(nil), ft.def.Order...),
		Values:  append([]any(nil), ft.rows[i]...),
	}, nil
}

func (f *fakeSource) UpdateRow(_ context.Context, t schema.Table, key record.Key, values record.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return 0, f.failWrite
	}
	ft := f.tables[tableKey(t.Schema, t.Name)]
	i := f.find(ft, key)
	if i < 0 {
		return 0, nil
	}
	for j, col := range values.Columns {
		for k, c := range ft.def.Order {
			if strings.EqualFold(c, col) {
				ft.rows[i][k] = values.Values[j]
			}
		}
	}
	f.writes++
	return 1, nil
}
