package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a relations file.
type File struct {
	ForeignKeyPrefix string              `yaml:"fk_prefix"`
	Relations        []Relation          `yaml:"relations"`
	CompositeKeys    map[string][]string `yaml:"composite_keys"`
	TableOrder       []string            `yaml:"table_order"`
}

// Load reads a relations file. An empty path yields Default().
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read relations file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse relations file: %w", err)
	}
	for i, r := range f.Relations {
		if r.Table == "" || r.Column == "" || r.ReferencedTable == "" || r.ReferencedColumn == "" {
			return nil, fmt.Errorf("relation %d: table, column, references and pk are required", i)
		}
	}
	for table, cols := range f.CompositeKeys {
		if len(cols) != 2 {
			return nil, fmt.Errorf("composite key for %s must have exactly two columns", table)
		}
	}
	return New(f.ForeignKeyPrefix, f.Relations, f.CompositeKeys, f.TableOrder), nil
}
