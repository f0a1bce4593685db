package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Commerce marker names recorded in Document.Markers.
const (
	MarkerJSONLDProduct = "jsonld:product"
	MarkerJSONLDOffer   = "jsonld:offer"
	MarkerOGProduct     = "og:type=product"
	MarkerPriceMeta     = "meta:price"
	MarkerItemprop      = "itemprop:price"
	MarkerSchemaProduct = "itemtype:product"
)

// commerceMarkers collects structured signals that a page sells something.
// It must run before script elements are removed.
func commerceMarkers(doc *goquery.Document) []string {
	seen := map[string]bool{}
	var markers []string
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			markers = append(markers, m)
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		for _, t := range jsonLDTypes(v) {
			switch strings.ToLower(t) {
			case "product", "productgroup":
				add(MarkerJSONLDProduct)
			case "offer", "aggregateoffer":
				add(MarkerJSONLDOffer)
			}
		}
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		content := strings.ToLower(strings.TrimSpace(s.AttrOr("content", "")))
		switch key {
		case "og:type":
			if content == "product" || strings.HasPrefix(content, "product.") {
				add(MarkerOGProduct)
			}
		case "product:price:amount", "og:price:amount":
			if content != "" {
				add(MarkerPriceMeta)
			}
		}
	})

	if doc.Find(`[itemprop="price"], [itemprop="offers"]`).Length() > 0 {
		add(MarkerItemprop)
	}
	doc.Find("[itemtype]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.HasSuffix(strings.ToLower(s.AttrOr("itemtype", "")), "schema.org/product") {
			add(MarkerSchemaProduct)
			return false
		}
		return true
	})

	return markers
}

// jsonLDTypes returns every @type value in a decoded JSON-LD document,
// descending into arrays, @graph and nested objects such as offers.
func jsonLDTypes(v any) []string {
	var out []string
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			out = append(out, jsonLDTypes(e)...)
		}
	case map[string]any:
		switch t := x["@type"].(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok {
					out = append(out, s)
				}
			}
		}
		for k, e := range x {
			if k == "@type" || k == "@context" {
				continue
			}
			switch e.(type) {
			case map[string]any, []any:
				out = append(out, jsonLDTypes(e)...)
			}
		}
	}
	return out
}
