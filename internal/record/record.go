// Package record holds rows moving between the source and destination and
// the textual keys that identify them in the mapping store.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeySeparator joins the two parts of a composite key ("5_12").
const KeySeparator = "_"

var ErrEmptyKey = errors.New("row key is empty")

// Row is an ordered set of column values.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of a column, matched case-insensitively.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) Len() int { return len(r.Columns) }

// Key identifies a source row by one or two key columns.
type Key struct {
	Columns []string
	Values  []string
	// Partial is set when a composite-key table was addressed by its
	// leading column only. Such a key matches the first row found.
	Partial bool
}

// ParseKey interprets raw against the key columns of a table. With two key
// columns, "A_B" addresses both and "A" addresses the leading one only.
func ParseKey(raw string, columns []string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, ErrEmptyKey
	}
	switch len(columns) {
	case 1:
		return Key{Columns: []string{columns[0]}, Values: []string{raw}}, nil
	case 2:
		a, b, found := strings.Cut(raw, KeySeparator)
		if !found {
			return Key{Columns: []string{columns[0]}, Values: []string{raw}, Partial: true}, nil
		}
		if a == "" || b == "" {
			return Key{}, fmt.Errorf("composite key %q must look like A%sB", raw, KeySeparator)
		}
		return Key{Columns: append([]string(nil), columns...), Values: []string{a, b}}, nil
	default:
		return Key{}, fmt.Errorf("unsupported key width %d", len(columns))
	}
}

// String renders the key the way the mapping store records it.
func (k Key) String() string {
	return strings.Join(k.Values, KeySeparator)
}

// KeyString builds the mapping key of row from the given key columns.
func KeyString(row Row, columns []string) (string, error) {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v, ok := row.Get(col)
		if !ok {
			return "", fmt.Errorf("key column %s missing from row", col)
		}
		if v == nil {
			return "", fmt.Errorf("key column %s is null", col)
		}
		parts = append(parts, FormatValue(v))
	}
	return strings.Join(parts, KeySeparator), nil
}

// FormatValue renders a column value as mapping text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
