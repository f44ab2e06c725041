package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeySingle(t *testing.T) {
	k, err := ParseKey(" 42 ", []string{"id_client"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id_client"}, k.Columns)
	assert.Equal(t, "42", k.String())
	assert.False(t, k.Partial)
}

func TestParseKeyComposite(t *testing.T) {
	k, err := ParseKey("5_12", []string{"id_commande", "id_produit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "12"}, k.Values)
	assert.Equal(t, "5_12", k.String())
	assert.False(t, k.Partial)
}

func TestParseKeyCompositeLeadingOnly(t *testing.T) {
	k, err := ParseKey("5", []string{"id_commande", "id_produit"})
	require.NoError(t, err)
	assert.True(t, k.Partial)
	assert.Equal(t, []string{"id_commande"}, k.Columns)
}

func TestParseKeyErrors(t *testing.T) {
	_, err := ParseKey("  ", []string{"id"})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = ParseKey("5_", []string{"a", "b"})
	assert.Error(t, err)

	_, err = ParseKey("1", nil)
	assert.Error(t, err)
}

func TestKeyString(t *testing.T) {
	row := Row{Columns: []string{"ID_COMMANDE", "id_produit", "qte"}, Values: []any{int64(5), []byte("12"), 3}}

	s, err := KeyString(row, []string{"id_commande", "id_produit"})
	require.NoError(t, err)
	assert.Equal(t, "5_12", s)

	_, err = KeyString(row, []string{"missing"})
	assert.Error(t, err)

	row.Values[0] = nil
	_, err = KeyString(row, []string{"id_commande"})
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "7", FormatValue(int64(7)))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "2024-01-02T03:04:05Z", FormatValue(ts))
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "1.5", FormatValue(1.5))
}

func TestRowGet(t *testing.T) {
	row := Row{Columns: []string{"Nom"}, Values: []any{"Diallo"}}
	v, ok := row.Get("nom")
	assert.True(t, ok)
	assert.Equal(t, "Diallo", v)
	_, ok = row.Get("prenom")
	assert.False(t, ok)
	assert.Equal(t, 1, row.Len())
}
