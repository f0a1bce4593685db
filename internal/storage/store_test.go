package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a migrated on-disk Store for testing.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "synapse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// --- Insert + GetItem roundtrip ---

func TestInsert_GetItem_Roundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := &Item{
		Title:   "Test Article",
		Content: "Body text",
		URL:     "https://example.com/article",
		Type:    TypeArticle,
	}
	require.NoError(t, store.Insert(ctx, item))

	assert.Positive(t, item.ID)
	assert.False(t, item.CreatedAt.IsZero(), "created_at should be assigned")

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, *item, *got)
}

func TestInsert_RejectsInvalidType(t *testing.T) {
	store := openTestStore(t)

	err := store.Insert(context.Background(), &Item{Title: "x", Type: "PODCAST"})
	require.Error(t, err)

	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "insert", se.Op)
}

func TestInsert_ReplacesInvalidUTF8(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := &Item{Title: "bad\xffname.txt", Content: "caf\xe9 menu", Type: TypeNote}
	require.NoError(t, store.Insert(ctx, item))
	assert.Equal(t, "bad\uFFFDname.txt", item.Title)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "bad\uFFFDname.txt", got.Title)
	assert.Equal(t, "caf\uFFFD menu", got.Content)
}

func TestInsert_UniqueIDsAndIncreasingTimestamps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A frozen clock forces every insert to collide.
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.Now = func() time.Time { return frozen }

	var prev *Item
	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		it := &Item{Title: fmt.Sprintf("item %d", i), Type: TypeNote}
		require.NoError(t, store.Insert(ctx, it))
		assert.False(t, seen[it.ID], "id %d reused", it.ID)
		seen[it.ID] = true
		if prev != nil {
			assert.Greater(t, it.ID, prev.ID)
			assert.True(t, it.CreatedAt.After(prev.CreatedAt), "created_at must increase")
		}
		prev = it
	}
}

func TestInsert_ClockGoingBackwards(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	first := &Item{Title: "first", Type: TypeNote}
	require.NoError(t, store.Insert(ctx, first))

	now = now.Add(-time.Hour)
	second := &Item{Title: "second", Type: TypeNote}
	require.NoError(t, store.Insert(ctx, second))

	assert.True(t, second.CreatedAt.After(first.CreatedAt), "no backdating")
}

func TestInsert_Concurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	items := make([]*Item, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items[i] = &Item{Title: fmt.Sprintf("concurrent %d", i), Type: TypeArticle}
			errs[i] = store.Insert(ctx, items[i])
		}(i)
	}
	wg.Wait()

	ids := map[int64]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, ids[items[i].ID], "duplicate id %d", items[i].ID)
		ids[items[i].ID] = true
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)

	// Newest first, and id order matches timestamp order.
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.After(all[i].CreatedAt))
		assert.Greater(t, all[i-1].ID, all[i].ID)
	}
}

// --- ListAll / Find ---

func TestListAll_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		require.NoError(t, store.Insert(ctx, &Item{Title: title, Type: TypeNote}))
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "C", items[0].Title)
	assert.Equal(t, "B", items[1].Title)
	assert.Equal(t, "A", items[2].Title)
}

func TestListAll_EmptyStoreReturnsEmptySlice(t *testing.T) {
	store := openTestStore(t)

	items, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestFind_CaseInsensitiveTitleOrContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &Item{Title: "my_bill.png", Content: "my_bill.png", Type: TypeImage}))
	require.NoError(t, store.Insert(ctx, &Item{Title: "Recipes", Content: "A Billion ways to cook rice", Type: TypeArticle}))
	require.NoError(t, store.Insert(ctx, &Item{Title: "Unrelated", Content: "nothing here", Type: TypeNote}))

	for _, q := range []string{"bill", "BILL", "Bill"} {
		items, err := store.Find(ctx, q)
		require.NoError(t, err)
		require.Len(t, items, 2, "query %q", q)
		assert.Equal(t, "Recipes", items[0].Title, "newest first")
		assert.Equal(t, "my_bill.png", items[1].Title)
	}
}

func TestFind_UnicodeCaseFolding(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &Item{Title: "ÉCOLE NORMALE", Type: TypeArticle}))

	items, err := store.Find(ctx, "école")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFind_NoMatchReturnsEmptySlice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &Item{Title: "something", Type: TypeNote}))

	items, err := store.Find(ctx, "zzz-no-match")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListAll_TieBreakByIDAscending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Rows written with identical timestamps bypass Insert's clamping.
	for _, title := range []string{"first", "second"} {
		_, err := store.DB().Exec(
			"INSERT INTO items (title, content, url, item_type, created_at) VALUES (?, '', '', 'NOTE', 42)", title)
		require.NoError(t, err)
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Title)
	assert.Equal(t, "second", items[1].Title)
}

// --- FindByURL / GetItem ---

func TestFindByURL(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := &Item{Title: "Go", URL: "https://go.dev/", Type: TypeArticle}
	require.NoError(t, store.Insert(ctx, item))

	got, err := store.FindByURL(ctx, "https://go.dev/")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	_, err = store.FindByURL(ctx, "https://missing.example/")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetItem_NotFound(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetItem(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}

// --- Capture log / stats ---

func TestRecordCapture_AndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := &Item{Title: "ok", Type: TypeArticle}
	require.NoError(t, store.Insert(ctx, item))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordCapture(ctx, &CaptureRecord{
		TaskID: "t1", Source: "url", Target: "https://ok.example", State: "STORED",
		ItemID: item.ID, StartedAt: base, FinishedAt: base.Add(time.Second),
	}))
	require.NoError(t, store.RecordCapture(ctx, &CaptureRecord{
		TaskID: "t2", Source: "url", Target: "https://down.example", State: CaptureFailed,
		Error: "connection refused", StartedAt: base, FinishedAt: base.Add(2 * time.Second),
	}))

	recs, err := store.RecentCaptures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "t2", recs[0].TaskID)
	assert.Equal(t, "connection refused", recs[0].Error)
	assert.Zero(t, recs[0].ItemID)
	assert.Equal(t, item.ID, recs[1].ItemID)
	assert.True(t, base.Add(time.Second).Equal(recs[1].FinishedAt))
}

func TestGetStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalItems)
	assert.True(t, stats.OldestItem.IsZero())

	require.NoError(t, store.Insert(ctx, &Item{Title: "a", Type: TypeArticle}))
	require.NoError(t, store.Insert(ctx, &Item{Title: "b", Type: TypeArticle}))
	require.NoError(t, store.Insert(ctx, &Item{Title: "c", Type: TypeVideo}))
	require.NoError(t, store.RecordCapture(ctx, &CaptureRecord{
		TaskID: "f", Source: "url", State: CaptureFailed, StartedAt: time.Now(), FinishedAt: time.Now(),
	}))

	stats, err = store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(2), stats.ByType[TypeArticle])
	assert.Equal(t, int64(1), stats.ByType[TypeVideo])
	assert.Equal(t, int64(1), stats.CapturesLogged)
	assert.Equal(t, int64(1), stats.CapturesFailed)
	assert.False(t, stats.NewestItem.Before(stats.OldestItem))
}

func TestOpenSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	first := &Item{Title: "kept", Type: TypeNote}
	require.NoError(t, s1.Insert(ctx, first))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	// A clock behind the stored rows must not backdate the next insert.
	s2.Now = func() time.Time { return first.CreatedAt.Add(-time.Minute) }
	second := &Item{Title: "next", Type: TypeNote}
	require.NoError(t, s2.Insert(ctx, second))
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Greater(t, second.ID, first.ID)
}
