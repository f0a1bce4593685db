// Package search answers substring queries over stored items.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/synapse/internal/storage"
)

// Messages returned alongside results.
const (
	NoQueryMessage = "Enter a search term to find your memories."
	NoMatchMessage = "No memories found matching that query."
)

// Finder is the store capability search needs.
type Finder interface {
	Find(ctx context.Context, substr string) ([]storage.Item, error)
}

// Result is the answer to one query. Items is never nil.
type Result struct {
	Query   string         `json:"query"`
	Items   []storage.Item `json:"items"`
	NoQuery bool           `json:"no_query,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Engine matches queries case-insensitively against title and content.
type Engine struct {
	store Finder
}

// New returns an Engine over store.
func New(store Finder) *Engine {
	return &Engine{store: store}
}

// Search returns items containing query, newest first. The query is matched
// as given, surrounding whitespace included. A blank query yields the
// no-query state instead of the whole store.
func (e *Engine) Search(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return &Result{Items: []storage.Item{}, NoQuery: true, Message: NoQueryMessage}, nil
	}

	items, err := e.store.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if items == nil {
		items = []storage.Item{}
	}

	res := &Result{Query: query, Items: items}
	if len(items) == 0 {
		res.Message = NoMatchMessage
	}
	return res, nil
}
