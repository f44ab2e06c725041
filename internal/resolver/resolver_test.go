package resolver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/catalog"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

type fakeLookup struct {
	entries map[string]string
	err     error
	calls   []string
}

func (f *fakeLookup) Lookup(_ context.Context, _ pgdb.Querier, sourceDB, table, oldID string) (string, bool, error) {
	f.calls = append(f.calls, sourceDB+"/"+table+"/"+oldID)
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.entries[sourceDB+"/"+table+"/"+oldID]
	return v, ok, nil
}

type missCounter struct{ n int }

func (m *missCounter) ResolutionMiss(string, string, string) { m.n++ }

func newResolver(l Lookup, m MissRecorder, buf *bytes.Buffer) *Resolver {
	return New(catalog.Default(), l, slog.New(slog.NewTextHandler(buf, nil)), m)
}

func TestResolveHitUsesReferencedTable(t *testing.T) {
	l := &fakeLookup{entries: map[string]string{"VENTES1/CLIENT/7": "3"}}
	r := newResolver(l, nil, &bytes.Buffer{})

	got, err := r.Resolve(context.Background(), nil, "VENTES1", "COMMANDE", "id_client", int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
	assert.Equal(t, []string{"VENTES1/CLIENT/7"}, l.calls)
}

func TestResolveDeclaredRelationBeatsHeuristic(t *testing.T) {
	c := catalog.New("id_", []catalog.Relation{
		{Table: "AVIS", Column: "id_client", ReferencedTable: "CUSTOMERS", ReferencedColumn: "customer_no"},
	}, nil, nil)
	l := &fakeLookup{entries: map[string]string{"DB/CUSTOMERS/4": "40", "DB/CLIENT/4": "99"}}
	r := New(c, l, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)

	got, err := r.Resolve(context.Background(), nil, "DB", "AVIS", "id_client", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got)
}

func TestResolveMissKeepsValueAndWarns(t *testing.T) {
	var buf bytes.Buffer
	misses := &missCounter{}
	r := newResolver(&fakeLookup{}, misses, &buf)

	got, err := r.Resolve(context.Background(), nil, "THIERNO", "AVIS", "id_produit", int64(12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)
	assert.Equal(t, 1, misses.n)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "referenced_table=PRODUIT")
}

func TestResolvePassThrough(t *testing.T) {
	l := &fakeLookup{}
	r := newResolver(l, nil, &bytes.Buffer{})

	got, err := r.Resolve(context.Background(), nil, "DB", "CLIENT", "nom", "Diallo")
	require.NoError(t, err)
	assert.Equal(t, "Diallo", got)

	got, err = r.Resolve(context.Background(), nil, "DB", "AVIS", "id_client", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, l.calls)
}

func TestResolveStringValueStaysString(t *testing.T) {
	l := &fakeLookup{entries: map[string]string{"DB/VENDEUR/V1": "12"}}
	r := newResolver(l, nil, &bytes.Buffer{})

	got, err := r.Resolve(context.Background(), nil, "DB", "COMMANDE", "id_vendeur", "V1")
	require.NoError(t, err)
	assert.Equal(t, "12", got)
}

func TestResolveStorageError(t *testing.T) {
	boom := errors.New("connection reset")
	r := newResolver(&fakeLookup{err: boom}, nil, &bytes.Buffer{})

	_, err := r.Resolve(context.Background(), nil, "DB", "COMMANDE", "id_client", 1)
	assert.ErrorIs(t, err, boom)
}
