package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// boilerplateSelector lists elements that never contribute visible text.
const boilerplateSelector = "script, style, noscript, template, iframe, svg, nav, footer, aside"

var consentMarkers = []string{"cookie", "consent", "gdpr"}

// HTMLExtractor extracts the title and readable text of an HTML page.
type HTMLExtractor struct {
	// MaxContentChars caps Content in runes. Zero means
	// DefaultMaxContentChars; negative means unlimited.
	MaxContentChars int
}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(_ context.Context, src Source) Document {
	doc, err := goquery.NewDocumentFromReader(decode(src.Body, src.ContentType))
	if err != nil {
		return Document{
			Title:          fallbackTitle("", src.URL),
			Degraded:       true,
			DegradedReason: fmt.Sprintf("parse html: %v", err),
		}
	}

	out := Document{
		Title:   pageTitle(doc, src.URL),
		Markers: commerceMarkers(doc),
	}

	doc.Find(boilerplateSelector).Remove()
	doc.Find("[id], [class], [role], [aria-label]").FilterFunction(isConsentContainer).Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	out.Content = truncateRunes(visibleText(root), limitOrDefault(e.MaxContentChars))
	if out.Content == "" {
		out.Degraded = true
		out.DegradedReason = "no visible text"
	}
	return out
}

// decode converts body to UTF-8 using the declared content type, a BOM or
// <meta charset>. Unknown encodings pass through untouched.
func decode(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

func pageTitle(doc *goquery.Document, rawURL string) string {
	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = collapse(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}
	return fallbackTitle(title, rawURL)
}

func fallbackTitle(title, rawURL string) string {
	if title != "" {
		return title
	}
	if rawURL != "" {
		return rawURL
	}
	return UntitledTitle
}

func isConsentContainer(_ int, s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "html", "body", "main", "article":
		return false
	}
	for _, attr := range []string{"id", "class", "role", "aria-label"} {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		for _, m := range consentMarkers {
			if strings.Contains(v, m) {
				return true
			}
		}
	}
	return false
}

// visibleText joins every text node under sel with single spaces.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := collapse(n.Data); t != "" {
				parts = append(parts, t)
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
