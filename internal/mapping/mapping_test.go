package mapping

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

func TestTableName(t *testing.T) {
	name, err := TableName("THIERNO", "LIGNE_COMMANDE")
	require.NoError(t, err)
	assert.Equal(t, "id_mapping_thierno_ligne_commande", name)

	for _, bad := range [][2]string{{"x;drop", "t"}, {"db", "t\"x"}, {"db", strings.Repeat("a", 60)}} {
		_, err := TableName(bad[0], bad[1])
		assert.ErrorIs(t, err, ErrInvalidTableName, bad)
	}
}

func TestSplitTableName(t *testing.T) {
	dbs := []string{"THIERNO", "VENTES1", "MY_DB"}

	db, table, ok := SplitTableName("id_mapping_thierno_ligne_commande", dbs)
	require.True(t, ok)
	assert.Equal(t, "THIERNO", db)
	assert.Equal(t, "LIGNE_COMMANDE", table)

	db, table, ok = SplitTableName("id_mapping_my_db_client", dbs)
	require.True(t, ok)
	assert.Equal(t, "MY_DB", db)
	assert.Equal(t, "CLIENT", table)

	db, table, ok = SplitTableName("id_mapping_other_avis", dbs)
	require.True(t, ok)
	assert.Equal(t, "OTHER", db)
	assert.Equal(t, "AVIS", table)

	_, _, ok = SplitTableName("client", dbs)
	assert.False(t, ok)
}

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

func dropTable(t *testing.T, pool *pgxpool.Pool, db, table string) {
	t.Helper()
	name, err := TableName(db, table)
	require.NoError(t, err)
	_, err = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+pgdb.Ident("public", name))
	require.NoError(t, err)
}

func TestLookupMissingTableIsMiss(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	dropTable(t, pool, "testdb", "nothing")

	_, found, err := NewStore("public").Lookup(ctx, pool, "testdb", "nothing", "1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpsertNeverDuplicates(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := NewStore("public")
	dropTable(t, pool, "testdb", "client")
	t.Cleanup(func() { dropTable(t, pool, "testdb", "client") })

	require.NoError(t, pgdb.InTx(ctx, pool, func(tx pgx.Tx) error {
		if err := s.EnsureTable(ctx, tx, "testdb", "client"); err != nil {
			return err
		}
		if err := s.Upsert(ctx, tx, "testdb", "client", "7", "1"); err != nil {
			return err
		}
		return s.Upsert(ctx, tx, "testdb", "client", "7", "2")
	}))

	entries, err := s.Entries(ctx, pool, "testdb", "client")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "client", entries[0].TableName)
	assert.Equal(t, "2", entries[0].NewID)

	newID, found, err := s.Lookup(ctx, pool, "testdb", "client", "7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", newID)

	keys, err := s.MappedKeys(ctx, pool, "testdb", "client")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"7": true}, keys)

	summary, err := s.Summary(ctx, pool, []string{"TESTDB"})
	require.NoError(t, err)
	assert.Contains(t, summary, Count{Database: "TESTDB", Table: "CLIENT", Rows: 1})

	require.NoError(t, s.Clear(ctx, pool, "testdb", "client"))
	_, found, err = s.Lookup(ctx, pool, "testdb", "client", "7")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnsureTableConcurrentFirstUse(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := NewStore("public")
	dropTable(t, pool, "testdb", "race")
	t.Cleanup(func() { dropTable(t, pool, "testdb", "race") })

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pgdb.InTx(ctx, pool, func(tx pgx.Tx) error {
				return s.EnsureTable(ctx, tx, "testdb", "race")
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	ok, err := s.Exists(ctx, pool, "testdb", "race")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClearMissingTableIsNoop(t *testing.T) {
	pool := newTestPool(t)
	dropTable(t, pool, "testdb", "ghost")
	assert.NoError(t, NewStore("public").Clear(context.Background(), pool, "testdb", "ghost"))
}

func TestRowsWithAnyTableNameCaseAreFound(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := NewStore("public")
	dropTable(t, pool, "testdb", "produit")
	t.Cleanup(func() { dropTable(t, pool, "testdb", "produit") })

	require.NoError(t, pgdb.InTx(ctx, pool, func(tx pgx.Tx) error {
		return s.EnsureTable(ctx, tx, "testdb", "produit")
	}))
	name, err := TableName("testdb", "produit")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "INSERT INTO "+pgdb.Ident("public", name)+
		" (table_name, old_id, new_id) VALUES ('produit', '4', '40'), ('PRODUIT', '5', '50')")
	require.NoError(t, err)

	for oldID, want := range map[string]string{"4": "40", "5": "50"} {
		newID, found, err := s.Lookup(ctx, pool, "testdb", "PRODUIT", oldID)
		require.NoError(t, err)
		assert.True(t, found, oldID)
		assert.Equal(t, want, newID)
	}

	require.NoError(t, s.Upsert(ctx, pool, "testdb", "PRODUIT", "5", "51"))
	require.NoError(t, s.Upsert(ctx, pool, "testdb", "PRODUIT", "6", "60"))

	entries, err := s.Entries(ctx, pool, "testdb", "produit")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	newID, _, err := s.Lookup(ctx, pool, "testdb", "produit", "5")
	require.NoError(t, err)
	assert.Equal(t, "51", newID)
	assert.Equal(t, "produit", entries[2].TableName)

	keys, err := s.MappedKeys(ctx, pool, "testdb", "produit")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"4": true, "5": true, "6": true}, keys)
}
