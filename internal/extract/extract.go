// Package extract turns fetched or uploaded bytes into the title and text
// an item is stored with.
package extract

import (
	"context"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/runnerr0/synapse/internal/media"
)

// UntitledTitle is used when a source yields no usable title.
const UntitledTitle = "Untitled"

// DefaultMaxContentChars bounds Document.Content in runes.
const DefaultMaxContentChars = 10000

// Source is the raw input of one extraction.
type Source struct {
	URL         string
	Filename    string
	Ref         string // upload reference, empty for fetched resources
	Kind        media.Kind
	ContentType string
	Body        []byte
}

// Document is the result of extraction. Degraded documents are still
// stored; DegradedReason says what went wrong.
type Document struct {
	Title          string
	Content        string
	Ref            string
	Markers        []string // commerce markers found in the markup
	Degraded       bool
	DegradedReason string
}

// Extractor converts a Source into a Document. Implementations never fail:
// unusable input yields a degraded Document.
type Extractor interface {
	Extract(ctx context.Context, src Source) Document
}

// Dispatcher routes a Source to the extractor for its kind.
type Dispatcher struct {
	HTML Extractor
	Text Extractor
	File Extractor
}

// NewDispatcher returns a Dispatcher with the default extractors.
func NewDispatcher(maxContentChars int) *Dispatcher {
	return &Dispatcher{
		HTML: &HTMLExtractor{MaxContentChars: maxContentChars},
		Text: &TextExtractor{MaxContentChars: maxContentChars},
		File: FileExtractor{},
	}
}

// Extract implements Extractor.
func (d *Dispatcher) Extract(ctx context.Context, src Source) Document {
	// Uploads always use the filename stand-in.
	if src.Ref != "" {
		return d.File.Extract(ctx, src)
	}
	switch src.Kind {
	case media.KindHTML:
		return d.HTML.Extract(ctx, src)
	case media.KindText:
		return d.Text.Extract(ctx, src)
	case media.KindImage, media.KindBinary, media.KindNone:
		return d.File.Extract(ctx, src)
	}
	return d.File.Extract(ctx, src)
}

// collapse joins the whitespace-separated fields of s with single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes returns the first n runes of s. n <= 0 means no limit.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// nameFromURL returns the decoded last path segment of rawURL, or its
// host when the path is empty.
func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return u.Host
	}
	return path.Base(p)
}

func limitOrDefault(n int) int {
	if n == 0 {
		return DefaultMaxContentChars
	}
	return n
}
