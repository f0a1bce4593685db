package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPostgres connects to SYNAPSE_TEST_POSTGRES_URL, skipping when unset.
// The items and capture_log tables are truncated before each test.
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("SYNAPSE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("SYNAPSE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.pool.Exec(ctx, "TRUNCATE capture_log, items RESTART IDENTITY")
	require.NoError(t, err)
	return store
}

func TestPostgres_InsertListFind(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	for _, title := range []string{"A bill", "B", "C"} {
		require.NoError(t, store.Insert(ctx, &Item{Title: title, Type: TypeNote}))
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "C", items[0].Title)
	assert.Equal(t, "A bill", items[2].Title)

	found, err := store.Find(ctx, "BILL")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = store.GetItem(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_InsertInvalidUTF8(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	item := &Item{Title: "bad\xffname.txt", Content: "caf\xe9", Type: TypeNote}
	require.NoError(t, store.Insert(ctx, item))

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "bad\uFFFDname.txt", got.Title)
	assert.Equal(t, "caf\uFFFD", got.Content)
}

func TestPostgres_Stats(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &Item{Title: "v", Type: TypeVideo}))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalItems)
	assert.Equal(t, int64(1), stats.ByType[TypeVideo])
}
