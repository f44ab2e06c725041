// Package diff compares a source table with its destination counterpart
// before rows are moved between them.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

// TableDiff describes how a source table and its destination counterpart differ.
// Column names compare case-insensitively; data types are not compared
// because the two engines spell them differently.
type TableDiff struct {
	Table          string         `json:"table_name"`
	OnlyInSource   []string       `json:"only_in_source,omitempty"`
	OnlyInDest     []string       `json:"only_in_destination,omitempty"`
	Unfed          []string       `json:"unfed_required_columns,omitempty"`
	Changed        []ColumnChange `json:"changed,omitempty"`
	PrimaryKeySrc  []string       `json:"source_primary_key"`
	PrimaryKeyDest []string       `json:"destination_primary_key"`
	PrimaryKeyDiff bool           `json:"primary_key_differs"`
}

// ColumnChange marks a column present on both sides with different nullability.
type ColumnChange struct {
	Name       string `json:"name"`
	SourceNull bool   `json:"source_nullable"`
	DestNull   bool   `json:"destination_nullable"`
}

// Compare builds a diff between src (source) and dst (destination).
func Compare(src, dst schema.Table) TableDiff {
	td := TableDiff{
		Table:          src.Name,
		PrimaryKeySrc:  lowerAll(src.PrimaryKey),
		PrimaryKeyDest: lowerAll(dst.PrimaryKey),
	}
	td.PrimaryKeyDiff = !equalStringSlices(td.PrimaryKeySrc, td.PrimaryKeyDest)

	srcCols := columnsByLowerName(src)
	dstCols := columnsByLowerName(dst)
	td.OnlyInSource = difference(sortedKeys(srcCols), sortedKeys(dstCols))
	td.OnlyInDest = difference(sortedKeys(dstCols), sortedKeys(srcCols))
	for _, name := range td.OnlyInDest {
		if required(dstCols[name]) {
			td.Unfed = append(td.Unfed, name)
		}
	}

	for _, name := range sortedKeys(srcCols) {
		a := srcCols[name]
		b, ok := dstCols[name]
		if !ok || a.IsNullable == b.IsNullable {
			continue
		}
		td.Changed = append(td.Changed, ColumnChange{
			Name:       name,
			SourceNull: a.IsNullable,
			DestNull:   b.IsNullable,
		})
	}
	return td
}

// Transferable reports whether rows can be copied: every source column has a
// destination counterpart and every required destination column is fed.
func (d TableDiff) Transferable() bool {
	return len(d.OnlyInSource) == 0 && len(d.Unfed) == 0
}

// HasChanges reports whether the diff contains meaningful differences.
func (d TableDiff) HasChanges() bool {
	return len(d.OnlyInSource) > 0 || len(d.OnlyInDest) > 0 || len(d.Changed) > 0 || d.PrimaryKeyDiff
}

// Describe returns a human-readable summary of differences.
func Describe(d TableDiff) string {
	if !d.HasChanges() {
		return fmt.Sprintf("table %s matches", d.Table)
	}

	var lines []string
	if len(d.OnlyInSource) > 0 {
		lines = append(lines, fmt.Sprintf("Table %s: columns only in source: %s", d.Table, strings.Join(d.OnlyInSource, ", ")))
	}
	if len(d.OnlyInDest) > 0 {
		lines = append(lines, fmt.Sprintf("Table %s: columns only in destination: %s", d.Table, strings.Join(d.OnlyInDest, ", ")))
	}
	if len(d.Unfed) > 0 {
		lines = append(lines, fmt.Sprintf("Table %s: required destination columns with no source: %s", d.Table, strings.Join(d.Unfed, ", ")))
	}
	for _, ch := range d.Changed {
		lines = append(lines, fmt.Sprintf("Table %s column %s nullability differs (source NULL:%v | destination NULL:%v)",
			d.Table, ch.Name, ch.SourceNull, ch.DestNull))
	}
	if d.PrimaryKeyDiff {
		lines = append(lines, fmt.Sprintf("Table %s primary key differs (source: %v | destination: %v)", d.Table, d.PrimaryKeySrc, d.PrimaryKeyDest))
	}
	return strings.Join(lines, "\n")
}

// required reports whether an insert must supply the column.
func required(c schema.Column) bool {
	return !c.IsNullable && !c.DefaultValue.Valid && !c.Generated()
}

func columnsByLowerName(t schema.Table) map[string]schema.Column {
	out := make(map[string]schema.Column, len(t.Columns))
	for name, c := range t.Columns {
		out[strings.ToLower(name)] = c
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
