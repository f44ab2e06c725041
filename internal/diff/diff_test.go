package diff

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

func table(name string, pk []string, cols ...schema.Column) schema.Table {
	t := schema.Table{Name: name, Columns: map[string]schema.Column{}, PrimaryKey: pk}
	for _, c := range cols {
		t.Columns[c.Name] = c
		t.Order = append(t.Order, c.Name)
	}
	return t
}

func TestCompareMatchingIgnoresCaseAndTypes(t *testing.T) {
	src := table("CLIENT", []string{"ID_CLIENT"},
		schema.Column{Name: "ID_CLIENT", DataType: "int"},
		schema.Column{Name: "Nom", DataType: "varchar", IsNullable: true},
	)
	dst := table("client", []string{"id_client"},
		schema.Column{Name: "id_client", DataType: "integer", IsIdentity: true},
		schema.Column{Name: "nom", DataType: "text", IsNullable: true},
	)

	d := Compare(src, dst)
	assert.False(t, d.HasChanges())
	assert.True(t, d.Transferable())
	assert.Equal(t, "table CLIENT matches", Describe(d))
}

func TestCompareColumnsOnOneSide(t *testing.T) {
	src := table("PRODUIT", []string{"id_produit"},
		schema.Column{Name: "id_produit"},
		schema.Column{Name: "legacy_flag", IsNullable: true},
	)
	dst := table("produit", []string{"id_produit"},
		schema.Column{Name: "id_produit"},
		schema.Column{Name: "created_at", DefaultValue: sql.NullString{String: "now()", Valid: true}},
		schema.Column{Name: "note", IsNullable: true},
	)

	d := Compare(src, dst)
	assert.Equal(t, []string{"legacy_flag"}, d.OnlyInSource)
	assert.Equal(t, []string{"created_at", "note"}, d.OnlyInDest)
	assert.Empty(t, d.Unfed)
	assert.False(t, d.Transferable())
	assert.Contains(t, Describe(d), "columns only in source: legacy_flag")
}

func TestCompareUnfedRequiredColumnBlocksTransfer(t *testing.T) {
	src := table("AVIS", []string{"id_avis"}, schema.Column{Name: "id_avis"})
	dst := table("avis", []string{"id_avis"},
		schema.Column{Name: "id_avis"},
		schema.Column{Name: "note"},
	)

	d := Compare(src, dst)
	assert.Equal(t, []string{"note"}, d.Unfed)
	assert.False(t, d.Transferable())
	assert.Contains(t, Describe(d), "required destination columns with no source: note")
}

func TestCompareNullabilityAndPrimaryKey(t *testing.T) {
	src := table("LIGNE_COMMANDE", []string{"id_commande", "id_produit"},
		schema.Column{Name: "id_commande"},
		schema.Column{Name: "id_produit"},
		schema.Column{Name: "quantite", IsNullable: true},
	)
	dst := table("ligne_commande", []string{"id_ligne"},
		schema.Column{Name: "id_commande"},
		schema.Column{Name: "id_produit"},
		schema.Column{Name: "quantite"},
		schema.Column{Name: "id_ligne", IsIdentity: true},
	)

	d := Compare(src, dst)
	assert.True(t, d.PrimaryKeyDiff)
	assert.Equal(t, []ColumnChange{{Name: "quantite", SourceNull: true, DestNull: false}}, d.Changed)
	assert.True(t, d.Transferable())
	assert.Contains(t, Describe(d), "primary key differs")
}
