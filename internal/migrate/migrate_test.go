package migrate

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/migrations"
)

func TestParseVersion(t *testing.T) {
	v, name, err := parseVersion("0002_edit_intents.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, "edit_intents", name)

	_, _, err = parseVersion("edit.sql")
	assert.Error(t, err)
	_, _, err = parseVersion("x_edit.sql")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsAreNamedCorrectly(t *testing.T) {
	files, err := fs.Glob(migrations.FS(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		_, _, err := parseVersion(f)
		assert.NoError(t, err, f)
	}
}

func TestUpIsIdempotent(t *testing.T) {
	dsn := os.Getenv("PG_URL")
	if dsn == "" {
		t.Skip("PG_URL not set")
	}
	ctx := context.Background()
	pool, err := pgdb.Connect(ctx, dsn, pgdb.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	r := New(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, r.Up(ctx))
	require.NoError(t, r.Up(ctx))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM transfer_schema_migrations`).Scan(&n))
	assert.GreaterOrEqual(t, n, 2)
}
