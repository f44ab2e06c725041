package pgdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvisoryKeyIsStable(t *testing.T) {
	a := AdvisoryKey("VENTES1/CLIENT")
	assert.Equal(t, a, AdvisoryKey("VENTES1/CLIENT"))
	assert.NotEqual(t, a, AdvisoryKey("VENTES1/PRODUIT"))
}

func TestIdent(t *testing.T) {
	assert.Equal(t, `"public"."client"`, Ident("public", "client"))
	assert.Equal(t, `"we""ird"`, Ident(`we"ird`))
}
