package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeclaredBeatsHeuristic(t *testing.T) {
	c := New("id_", []Relation{
		{Table: "AVIS", Column: "id_client", ReferencedTable: "CUSTOMERS", ReferencedColumn: "customer_no"},
	}, nil, nil)

	target, origin, ok := c.Resolve("avis", "ID_CLIENT")
	require.True(t, ok)
	assert.Equal(t, OriginDeclared, origin)
	assert.Equal(t, Target{Table: "CUSTOMERS", Column: "customer_no"}, target)
}

func TestResolveDeclaredBeatsIntrospected(t *testing.T) {
	c := Default().With([]Relation{
		{Table: "COMMANDE", Column: "id_client", ReferencedTable: "OTHER", ReferencedColumn: "x"},
	})

	target, origin, ok := c.Resolve("COMMANDE", "id_client")
	require.True(t, ok)
	assert.Equal(t, OriginDeclared, origin)
	assert.Equal(t, "CLIENT", target.Table)
}

func TestResolveIntrospectedBeatsHeuristic(t *testing.T) {
	c := Default().With([]Relation{
		{Table: "FACTURE", Column: "id_cmd", ReferencedTable: "COMMANDE", ReferencedColumn: "id_commande"},
	})

	target, origin, ok := c.Resolve("facture", "id_cmd")
	require.True(t, ok)
	assert.Equal(t, OriginIntrospected, origin)
	assert.Equal(t, Target{Table: "COMMANDE", Column: "id_commande"}, target)

	_, origin, ok = Default().Resolve("facture", "id_cmd")
	require.True(t, ok)
	assert.Equal(t, OriginHeuristic, origin)
}

func TestResolveHeuristic(t *testing.T) {
	target, origin, ok := Default().Resolve("PAIEMENT", "id_vendeur")
	require.True(t, ok)
	assert.Equal(t, OriginHeuristic, origin)
	assert.Equal(t, Target{Table: "VENDEUR", Column: "id_vendeur"}, target)
}

func TestResolveNoMatch(t *testing.T) {
	c := Default()
	for _, col := range []string{"nom", "prix", "client_id", "id_"} {
		_, _, ok := c.Resolve("CLIENT", col)
		assert.False(t, ok, col)
	}
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base := Default()
	_ = base.With([]Relation{{Table: "X", Column: "ref", ReferencedTable: "Y", ReferencedColumn: "id"}})

	_, _, ok := base.Resolve("X", "ref")
	assert.False(t, ok)
}

func TestCompositeKey(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"id_commande", "id_produit"}, c.CompositeKey("ligne_commande"))
	assert.Nil(t, c.CompositeKey("CLIENT"))

	cols := c.CompositeKey("LIGNE_COMMANDE")
	cols[0] = "mutated"
	assert.Equal(t, "id_commande", c.CompositeKey("LIGNE_COMMANDE")[0])
}

func TestOrderUsesConfiguredPriorityFirst(t *testing.T) {
	got := Default().Order([]string{"AVIS", "zeta", "CLIENT", "LIGNE_COMMANDE", "COMMANDE", "PRODUIT", "VENDEUR"})
	assert.Equal(t, []string{"CLIENT", "PRODUIT", "VENDEUR", "COMMANDE", "LIGNE_COMMANDE", "AVIS", "zeta"}, got)
}

func TestOrderTopological(t *testing.T) {
	c := New("id_", nil, nil, nil).With([]Relation{
		{Table: "B", Column: "id_c", ReferencedTable: "C", ReferencedColumn: "id_c"},
		{Table: "A", Column: "id_b", ReferencedTable: "B", ReferencedColumn: "id_b"},
	})
	assert.Equal(t, []string{"C", "B", "A"}, c.Order([]string{"A", "B", "C"}))
}

func TestOrderCycleStillListsEveryTable(t *testing.T) {
	c := New("id_", []Relation{
		{Table: "A", Column: "id_b", ReferencedTable: "B", ReferencedColumn: "id_b"},
		{Table: "B", Column: "id_a", ReferencedTable: "A", ReferencedColumn: "id_a"},
	}, nil, nil)
	assert.ElementsMatch(t, []string{"A", "B", "D"}, c.Order([]string{"B", "A", "D"}))
	assert.Equal(t, "D", c.Order([]string{"B", "A", "D"})[0])
}

func TestLoadRelationsFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "relations.yaml"))
	require.NoError(t, err)

	target, origin, ok := c.Resolve("LIGNE_COMMANDE", "id_produit")
	require.True(t, ok)
	assert.Equal(t, OriginDeclared, origin)
	assert.Equal(t, "PRODUIT", target.Table)
	assert.Len(t, c.CompositeKey("LIGNE_COMMANDE"), 2)
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	_, origin, _ := c.Resolve("AVIS", "id_client")
	assert.Equal(t, OriginDeclared, origin)
}

func TestParseRejectsInvalidFiles(t *testing.T) {
	_, err := Parse([]byte("relations:\n  - {table: A, column: id_b}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("composite_keys:\n  L: [a]\n"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relations: [::"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestCustomPrefix(t *testing.T) {
	c := New("fk_", nil, nil, nil)
	assert.True(t, c.IsForeignKeyColumn("FK_client"))
	assert.False(t, c.IsForeignKeyColumn("id_client"))

	target, _, ok := c.Resolve("X", "fk_client")
	require.True(t, ok)
	assert.Equal(t, "CLIENT", target.Table)
}
