package extract

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxTextTitleChars = 100

// TextExtractor handles plain-text resources. Any markup is stripped.
type TextExtractor struct {
	MaxContentChars int
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(_ context.Context, src Source) Document {
	stripped := html.UnescapeString(string(bluemonday.StrictPolicy().SanitizeBytes(src.Body)))

	title := ""
	for _, line := range strings.Split(stripped, "\n") {
		if line = collapse(line); line != "" {
			title = truncateRunes(line, maxTextTitleChars)
			break
		}
	}
	if title == "" {
		title = nameFromURL(src.URL)
	}
	if title == "" {
		title = UntitledTitle
	}

	doc := Document{
		Title:   title,
		Content: truncateRunes(collapse(stripped), limitOrDefault(e.MaxContentChars)),
		Ref:     src.Ref,
	}
	if doc.Content == "" {
		doc.Degraded = true
		doc.DegradedReason = "no visible text"
	}
	return doc
}
