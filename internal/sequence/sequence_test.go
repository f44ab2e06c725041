package sequence

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PG_URL")
	if dsn == "" {
		t.Skip("PG_URL not set")
	}
	pool, err := pgdb.Connect(context.Background(), dsn, pgdb.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func exec(t *testing.T, pool *pgxpool.Pool, sql string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), sql)
	require.NoError(t, err)
}

func quietManager() *Manager {
	return NewManager("public", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResetOneRestartsAtOne(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	exec(t, pool, `DROP TABLE IF EXISTS seq_test_client`)
	exec(t, pool, `CREATE TABLE seq_test_client (id_client SERIAL PRIMARY KEY, nom TEXT)`)
	t.Cleanup(func() { exec(t, pool, `DROP TABLE IF EXISTS seq_test_client`) })
	exec(t, pool, `INSERT INTO seq_test_client (nom) VALUES ('a'), ('b'), ('c')`)
	exec(t, pool, `DELETE FROM seq_test_client`)

	ok, err := quietManager().ResetOne(ctx, pool, "seq_test_client")
	require.NoError(t, err)
	assert.True(t, ok)

	var id int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO seq_test_client (nom) VALUES ('d') RETURNING id_client`).Scan(&id))
	assert.Equal(t, int64(1), id)
}

func TestResetOneWithoutSequence(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	exec(t, pool, `DROP TABLE IF EXISTS seq_test_plain`)
	exec(t, pool, `CREATE TABLE seq_test_plain (code TEXT PRIMARY KEY)`)
	t.Cleanup(func() { exec(t, pool, `DROP TABLE IF EXISTS seq_test_plain`) })

	ok, err := quietManager().ResetOne(ctx, pool, "seq_test_plain")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = quietManager().ResetOne(ctx, pool, "seq_test_missing")
	assert.ErrorIs(t, err, schema.ErrTableNotFound)
}

func TestResetAllSkipsMappingSequences(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	exec(t, pool, `DROP SCHEMA IF EXISTS seq_test CASCADE`)
	exec(t, pool, `CREATE SCHEMA seq_test`)
	t.Cleanup(func() { exec(t, pool, `DROP SCHEMA IF EXISTS seq_test CASCADE`) })
	exec(t, pool, `CREATE TABLE seq_test.produit (id_produit SERIAL PRIMARY KEY)`)
	exec(t, pool, `CREATE TABLE seq_test.id_mapping_x_produit (id BIGSERIAL PRIMARY KEY, v TEXT)`)
	exec(t, pool, `INSERT INTO seq_test.produit DEFAULT VALUES`)
	exec(t, pool, `INSERT INTO seq_test.id_mapping_x_produit (v) VALUES ('x')`)

	m := NewManager("seq_test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := m.ResetAll(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var next int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO seq_test.produit DEFAULT VALUES RETURNING id_produit`).Scan(&next))
	assert.Equal(t, int64(1), next)
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO seq_test.id_mapping_x_produit (v) VALUES ('y') RETURNING id`).Scan(&next))
	assert.Equal(t, int64(2), next)
}
