package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runnerr0/synapse/internal/capture"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/search"
	"github.com/runnerr0/synapse/internal/storage"
)

func openTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Capture.Workers = 2
	cfg.Capture.FetchTimeoutSeconds = 2

	a, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func waitTask(t *testing.T, a *App, id string) capture.Result {
	t.Helper()
	task, ok := a.Task(id)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	require.NoError(t, err)
	return res
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/untitled":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><p>no title here</p></body></html>"))
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><head><title>Page " + r.URL.Path + "</title></head><body><article>Readable body</article></body></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptureURL_QueuesAndStores(t *testing.T) {
	a := openTestApp(t)
	srv := pageServer(t)
	ctx := context.Background()

	ack, err := a.CaptureURL(ctx, "  "+srv.URL+"/post  ")
	require.NoError(t, err)
	assert.NotEmpty(t, ack.TaskID)
	assert.False(t, ack.Duplicate)
	assert.Contains(t, ack.TitleGuess, "/post")

	res := waitTask(t, a, ack.TaskID)
	require.NoError(t, res.Err)
	assert.Equal(t, "Page /post", res.Item.Title)
	assert.Equal(t, "Readable body", res.Item.Content)
	assert.Equal(t, storage.TypeArticle, res.Item.Type)
	assert.Equal(t, srv.URL+"/post", res.Item.URL)

	snap, ok := a.CaptureStatus(ack.TaskID)
	require.True(t, ok)
	assert.Equal(t, capture.StateStored, snap.State)
	assert.Equal(t, res.Item.ID, snap.ItemID)
}

func TestCaptureURL_DuplicateReturnsStoredTitle(t *testing.T) {
	a := openTestApp(t)
	srv := pageServer(t)
	ctx := context.Background()

	ack, err := a.CaptureURL(ctx, srv.URL+"/once")
	require.NoError(t, err)
	first := waitTask(t, a, ack.TaskID)
	require.NoError(t, first.Err)

	dup, err := a.CaptureURL(ctx, srv.URL+"/once")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Empty(t, dup.TaskID)
	assert.Equal(t, "Page /once", dup.TitleGuess)
	assert.Equal(t, first.Item.ID, dup.ItemID)

	items, err := a.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCaptureURL_Invalid(t *testing.T) {
	a := openTestApp(t)
	for _, u := range []string{"", "   ", "example.com", "ftp://example.com/x", "http://", "://bad"} {
		_, err := a.CaptureURL(context.Background(), u)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", u)
	}
}

func TestCaptureURL_FailureInvisible(t *testing.T) {
	a := openTestApp(t)
	srv := pageServer(t)
	ctx := context.Background()

	ack, err := a.CaptureURL(ctx, srv.URL+"/broken")
	require.NoError(t, err)
	res := waitTask(t, a, ack.TaskID)
	assert.Error(t, res.Err)

	items, err := a.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	st, err := a.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Stats.CapturesFailed)
	require.Len(t, st.Recent, 1)
	assert.Equal(t, storage.CaptureFailed, st.Recent[0].State)
}

func TestCaptureURL_UntitledFallsBackToURL(t *testing.T) {
	a := openTestApp(t)
	srv := pageServer(t)

	ack, err := a.CaptureURL(context.Background(), srv.URL+"/untitled")
	require.NoError(t, err)
	res := waitTask(t, a, ack.TaskID)
	require.NoError(t, res.Err)
	assert.Equal(t, srv.URL+"/untitled", res.Item.Title)
}

func TestCaptureUpload_SearchByFilename(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()
	data := []byte("\x89PNG\r\n\x1a\nimage")

	ack, err := a.CaptureUpload(ctx, `C:\scans\my_bill.png`, data)
	require.NoError(t, err)
	assert.Equal(t, "my_bill.png", ack.TitleGuess)
	assert.NotEmpty(t, ack.Message)

	res := waitTask(t, a, ack.TaskID)
	require.NoError(t, res.Err)
	assert.Equal(t, storage.TypeImage, res.Item.Type)

	for _, q := range []string{"bill", "BILL"} {
		found, err := a.SearchItems(ctx, q)
		require.NoError(t, err)
		require.Len(t, found.Items, 1, "query %q", q)
		assert.Equal(t, "my_bill.png", found.Items[0].Title)
	}

	up, err := a.FetchUpload(ctx, res.Item.URL)
	require.NoError(t, err)
	assert.Equal(t, data, up.Data)
	assert.Equal(t, "image/png", up.ContentType)
}

func TestCaptureUpload_Empty(t *testing.T) {
	a := openTestApp(t)
	_, err := a.CaptureUpload(context.Background(), "x.png", nil)
	assert.ErrorIs(t, err, ErrEmptyUpload)
}

func TestFetchUpload_Unknown(t *testing.T) {
	a := openTestApp(t)
	_, err := a.FetchUpload(context.Background(), "0190a1b2-0000-7000-8000-000000000000_nope.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCaptureNote(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()

	item, err := a.CaptureNote(ctx, "Groceries", "milk, eggs")
	require.NoError(t, err)
	assert.Positive(t, item.ID)
	assert.Equal(t, storage.TypeNote, item.Type)
	assert.Empty(t, item.URL)

	untitled, err := a.CaptureNote(ctx, "  ", "\n  call the plumber  \nabout the sink")
	require.NoError(t, err)
	assert.Equal(t, "call the plumber", untitled.Title)

	_, err = a.CaptureNote(ctx, "", "   ")
	assert.ErrorIs(t, err, ErrEmptyNote)
}

func TestListAndSearchOrdering(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := a.CaptureNote(ctx, title, "shared text")
		require.NoError(t, err)
	}

	items, err := a.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{items[0].Title, items[1].Title, items[2].Title})

	res, err := a.SearchItems(ctx, "SHARED")
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)

	res, err = a.SearchItems(ctx, "zzz-no-match")
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)

	res, err = a.SearchItems(ctx, " ")
	require.NoError(t, err)
	assert.True(t, res.NoQuery)
	assert.Equal(t, search.NoQueryMessage, res.Message)
}

func TestHealthAndStatus(t *testing.T) {
	a := openTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Health(ctx))

	_, err := a.CaptureNote(ctx, "n", "")
	require.NoError(t, err)
	st, err := a.Status(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Stats.TotalItems)
	assert.Equal(t, int64(1), st.Stats.ByType[storage.TypeNote])
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Storage.Driver = "mysql"
	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "example.com/a/b", titleGuess("https://www.example.com/a/b/"))
	assert.Equal(t, "upload", displayName(""))
	assert.Equal(t, "upload", displayName("../"))
	assert.Equal(t, "x.png", displayName("/tmp/x.png"))
	assert.Equal(t, "Untitled", firstLine(" \n "))
}
