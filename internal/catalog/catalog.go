// Package catalog knows which source columns reference which tables.
//
// Lookups never touch a database: declarative relations come from
// configuration, introspected relations are handed in by the caller, and the
// naming convention "id_X references X.id_X" covers everything else.
package catalog

import (
	"sort"
	"strings"
)

// DefaultForeignKeyPrefix marks a column as a foreign key by naming convention.
const DefaultForeignKeyPrefix = "id_"

// Relation is one (source table, FK column) → (referenced table, referenced key) entry.
type Relation struct {
	Table            string `yaml:"table" json:"table"`
	Column           string `yaml:"column" json:"column"`
	ReferencedTable  string `yaml:"references" json:"references"`
	ReferencedColumn string `yaml:"pk" json:"pk"`
}

// Target is the referenced side of a relation.
type Target struct {
	Table  string
	Column string
}

// Origin tells which rule produced a Target.
type Origin string

const (
	OriginDeclared     Origin = "declared"
	OriginIntrospected Origin = "introspected"
	OriginHeuristic    Origin = "heuristic"
)

// Catalog is immutable once built; With returns a copy.
type Catalog struct {
	prefix        string
	declared      map[relationKey]Target
	introspected  map[relationKey]Target
	compositeKeys map[string][]string
	order         []string
}

type relationKey struct {
	table  string
	column string
}

func keyOf(table, column string) relationKey {
	return relationKey{table: strings.ToUpper(table), column: strings.ToLower(column)}
}

// New builds a catalog from declarative relations and composite key definitions.
func New(prefix string, relations []Relation, compositeKeys map[string][]string, order []string) *Catalog {
	if prefix == "" {
		prefix = DefaultForeignKeyPrefix
	}
	c := &Catalog{
		prefix:        strings.ToLower(prefix),
		declared:      make(map[relationKey]Target, len(relations)),
		introspected:  map[relationKey]Target{},
		compositeKeys: make(map[string][]string, len(compositeKeys)),
		order:         make([]string, 0, len(order)),
	}
	for _, r := range relations {
		c.declared[keyOf(r.Table, r.Column)] = Target{Table: r.ReferencedTable, Column: r.ReferencedColumn}
	}
	for table, cols := range compositeKeys {
		c.compositeKeys[strings.ToUpper(table)] = append([]string(nil), cols...)
	}
	for _, t := range order {
		c.order = append(c.order, strings.ToUpper(t))
	}
	return c
}

// Default mirrors the relation table of the legacy sales schema.
func Default() *Catalog {
	return New(DefaultForeignKeyPrefix,
		[]Relation{
			{Table: "COMMANDE", Column: "id_client", ReferencedTable: "CLIENT", ReferencedColumn: "id_client"},
			{Table: "COMMANDE", Column: "id_vendeur", ReferencedTable: "VENDEUR", ReferencedColumn: "id_vendeur"},
			{Table: "LIGNE_COMMANDE", Column: "id_commande", ReferencedTable: "COMMANDE", ReferencedColumn: "id_commande"},
			{Table: "LIGNE_COMMANDE", Column: "id_produit", ReferencedTable: "PRODUIT", ReferencedColumn: "id_produit"},
			{Table: "AVIS", Column: "id_client", ReferencedTable: "CLIENT", ReferencedColumn: "id_client"},
			{Table: "AVIS", Column: "id_produit", ReferencedTable: "PRODUIT", ReferencedColumn: "id_produit"},
		},
		map[string][]string{"LIGNE_COMMANDE": {"id_commande", "id_produit"}},
		[]string{"CLIENT", "PRODUIT", "VENDEUR", "COMMANDE", "LIGNE_COMMANDE", "AVIS"},
	)
}

// With returns a copy that also knows relations read from the source
// engine's foreign key constraints. Declared relations keep precedence.
func (c *Catalog) With(introspected []Relation) *Catalog {
	cp := *c
	cp.introspected = make(map[relationKey]Target, len(c.introspected)+len(introspected))
	for k, v := range c.introspected {
		cp.introspected[k] = v
	}
	for _, r := range introspected {
		cp.introspected[keyOf(r.Table, r.Column)] = Target{Table: r.ReferencedTable, Column: r.ReferencedColumn}
	}
	return &cp
}

// Resolve finds the table and key referenced by table.column.
func (c *Catalog) Resolve(table, column string) (Target, Origin, bool) {
	k := keyOf(table, column)
	if t, ok := c.declared[k]; ok {
		return t, OriginDeclared, true
	}
	if t, ok := c.introspected[k]; ok {
		return t, OriginIntrospected, true
	}
	if c.IsForeignKeyColumn(column) {
		rest := column[len(c.prefix):]
		if rest != "" {
			return Target{Table: strings.ToUpper(rest), Column: column}, OriginHeuristic, true
		}
	}
	return Target{}, "", false
}

// IsForeignKeyColumn reports whether the column follows the FK naming convention.
func (c *Catalog) IsForeignKeyColumn(column string) bool {
	return strings.HasPrefix(strings.ToLower(column), c.prefix)
}

// CompositeKey returns the two key columns of a composite-key table, or nil.
func (c *Catalog) CompositeKey(table string) []string {
	cols, ok := c.compositeKeys[strings.ToUpper(table)]
	if !ok {
		return nil
	}
	return append([]string(nil), cols...)
}

// Order sorts tables so that referenced tables come before the tables
// pointing at them. Configured priorities go first, then a topological
// order over the known relations, ties broken alphabetically. Tables caught
// in a cycle are appended alphabetically.
func (c *Catalog) Order(tables []string) []string {
	present := make(map[string]string, len(tables))
	for _, t := range tables {
		present[strings.ToUpper(t)] = t
	}

	out := make([]string, 0, len(tables))
	placed := make(map[string]bool, len(tables))
	for _, t := range c.order {
		if name, ok := present[t]; ok && !placed[t] {
			out = append(out, name)
			placed[t] = true
		}
	}

	deps := map[string]map[string]bool{}
	addDep := func(k relationKey, target Target) {
		from, to := k.table, strings.ToUpper(target.Table)
		if from == to {
			return
		}
		if _, ok := present[from]; !ok {
			return
		}
		if _, ok := present[to]; !ok {
			return
		}
		if deps[from] == nil {
			deps[from] = map[string]bool{}
		}
		deps[from][to] = true
	}
	for k, t := range c.declared {
		addDep(k, t)
	}
	for k, t := range c.introspected {
		addDep(k, t)
	}

	var remaining []string
	for upper := range present {
		if !placed[upper] {
			remaining = append(remaining, upper)
		}
	}
	sort.Strings(remaining)

	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0:0]
		for _, t := range remaining {
			ready := true
			for dep := range deps[t] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, present[t])
				placed[t] = true
				progressed = true
			} else {
				next = append(next, t)
			}
		}
		remaining = next
		if !progressed {
			for _, t := range remaining {
				out = append(out, present[t])
			}
			break
		}
	}
	return out
}
