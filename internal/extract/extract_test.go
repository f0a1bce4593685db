package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runnerr0/synapse/internal/media"
)

func TestFileExtractor_FilenameStandIn(t *testing.T) {
	doc := FileExtractor{}.Extract(context.Background(), Source{
		Filename: "my_bill.png",
		Ref:      "0190a1b2-0000-7000-8000-000000000000_my_bill.png",
		Kind:     media.KindImage,
	})

	assert.Equal(t, "my_bill.png", doc.Title)
	assert.Equal(t, "my_bill.png", doc.Content)
	assert.Equal(t, "0190a1b2-0000-7000-8000-000000000000_my_bill.png", doc.Ref)
	assert.False(t, doc.Degraded)
}

func TestFileExtractor_NameFromURL(t *testing.T) {
	doc := FileExtractor{}.Extract(context.Background(), Source{
		URL:  "https://cdn.example.com/files/annual%20report.pdf",
		Kind: media.KindBinary,
	})
	assert.Equal(t, "annual report.pdf", doc.Title)
	assert.Equal(t, "annual report.pdf", doc.Content)
}

func TestFileExtractor_NoName(t *testing.T) {
	doc := FileExtractor{}.Extract(context.Background(), Source{Kind: media.KindBinary})
	assert.Equal(t, UntitledTitle, doc.Title)
	assert.True(t, doc.Degraded)
}

func TestTextExtractor(t *testing.T) {
	e := &TextExtractor{}
	doc := e.Extract(context.Background(), Source{
		URL:  "https://example.com/notes.txt",
		Kind: media.KindText,
		Body: []byte("\n  Shopping list\nmilk <b>&amp;</b> eggs\n"),
	})

	assert.Equal(t, "Shopping list", doc.Title)
	assert.Equal(t, "Shopping list milk & eggs", doc.Content)
}

func TestTextExtractor_EmptyBody(t *testing.T) {
	e := &TextExtractor{}
	doc := e.Extract(context.Background(), Source{URL: "https://example.com/empty.txt", Kind: media.KindText})

	assert.Equal(t, "empty.txt", doc.Title)
	assert.True(t, doc.Degraded)
}

func TestDispatcher_Routes(t *testing.T) {
	d := NewDispatcher(0)
	ctx := context.Background()

	doc := d.Extract(ctx, Source{Kind: media.KindHTML, Body: []byte("<title>T</title><p>hi</p>")})
	assert.Equal(t, "T", doc.Title)

	doc = d.Extract(ctx, Source{Kind: media.KindText, Body: []byte("plain words")})
	assert.Equal(t, "plain words", doc.Content)

	doc = d.Extract(ctx, Source{URL: "https://example.com/cat.jpg", Kind: media.KindImage})
	assert.Equal(t, "cat.jpg", doc.Title)

	// Uploads use the filename even when the bytes are text.
	doc = d.Extract(ctx, Source{Filename: "todo.txt", Ref: "r_todo.txt", Kind: media.KindText, Body: []byte("buy milk")})
	assert.Equal(t, "todo.txt", doc.Content)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "héllo", truncateRunes("héllo", -1))
}

func TestNameFromURL(t *testing.T) {
	assert.Equal(t, "b.png", nameFromURL("https://x.com/a/b.png"))
	assert.Equal(t, "dir", nameFromURL("https://x.com/dir/"))
	assert.Equal(t, "x.com", nameFromURL("https://x.com"))
	assert.Equal(t, "", nameFromURL(""))
}
