package storage

import (
	"fmt"
	"strings"
	"time"
)

// ItemType is the closed set of labels the classifier can assign.
type ItemType string

const (
	TypeArticle ItemType = "ARTICLE"
	TypeVideo   ItemType = "VIDEO"
	TypeProduct ItemType = "PRODUCT"
	TypeNote    ItemType = "NOTE"
	TypeImage   ItemType = "IMAGE"
)

// ItemTypes returns every label in display order.
func ItemTypes() []ItemType {
	return []ItemType{TypeArticle, TypeVideo, TypeProduct, TypeNote, TypeImage}
}

// Valid reports whether t is one of the five labels.
func (t ItemType) Valid() bool {
	switch t {
	case TypeArticle, TypeVideo, TypeProduct, TypeNote, TypeImage:
		return true
	}
	return false
}

// Label returns a short human-readable name for t.
func (t ItemType) Label() string {
	switch t {
	case TypeArticle:
		return "Article"
	case TypeVideo:
		return "Video"
	case TypeProduct:
		return "Product"
	case TypeNote:
		return "Note"
	case TypeImage:
		return "Image"
	}
	return string(t)
}

// ParseItemType parses a label case-insensitively.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown item type %q", s)
	}
	return t, nil
}

// Item is a single captured memory.
type Item struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url"`
	Type      ItemType  `json:"item_type"`
	CreatedAt time.Time `json:"created_at"`
}

// sanitize replaces invalid UTF-8 in the text fields with U+FFFD. Postgres
// rejects such text and SQLite would store bytes that no longer round-trip.
func (it *Item) sanitize() {
	it.Title = strings.ToValidUTF8(it.Title, "\uFFFD")
	it.Content = strings.ToValidUTF8(it.Content, "\uFFFD")
	it.URL = strings.ToValidUTF8(it.URL, "\uFFFD")
}

// CaptureFailed is the capture log state of a pipeline run that did not
// store an item.
const CaptureFailed = "FAILED"

// CaptureRecord is one entry of the capture log: the outcome of a single
// pipeline run, successful or not.
type CaptureRecord struct {
	TaskID     string
	Source     string // "url" or "upload"
	Target     string // URL or filename
	State      string
	Error      string
	ItemID     int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Stats holds aggregate statistics about the store.
type Stats struct {
	TotalItems     int64
	ByType         map[ItemType]int64
	OldestItem     time.Time
	NewestItem     time.Time
	CapturesLogged int64
	CapturesFailed int64
}
