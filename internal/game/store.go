package game

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
	ErrInvalidGame      = errors.New("invalid game")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidSort      = errors.New("invalid sort key")
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrCursorMismatch   = errors.New("cursor belongs to a different query")
)

// Store defines the persistence operations of the catalog. Implementations
// must be safe for concurrent use.
type Store interface {
	// QueryPage returns up to q.Limit games ordered by q.Sort descending,
	// starting strictly after q.Cursor.
	QueryPage(ctx context.Context, q PageQuery) (*Page, error)
	GetGame(ctx context.Context, id string) (*Game, error)
	CreateGame(ctx context.Context, game *Game) error
	// UpdateGame writes the editable fields of game. Counters are left alone.
	UpdateGame(ctx context.Context, game *Game) error
	DeleteGame(ctx context.Context, id string) error
	// IncrementPlay atomically adds one to both popularity and play count.
	IncrementPlay(ctx context.Context, id string) error
	// ListGames returns every game ordered by name ascending.
	ListGames(ctx context.Context) ([]*Game, error)
	// TopGames returns the n most played games.
	TopGames(ctx context.Context, n int) ([]*Game, error)

	ListCategories(ctx context.Context) ([]*Category, error)
	CreateCategory(ctx context.Context, category *Category) error
	DeleteCategory(ctx context.Context, id string) error
}

// Filter narrows a catalog query.
type Filter struct {
	Category string
}

// PageQuery describes one page request.
type PageQuery struct {
	Filter Filter
	Sort   SortKey
	Cursor Cursor
	Limit  int
}

// Page is one page of catalog results.
type Page struct {
	Items      []*Game `json:"items"`
	NextCursor Cursor  `json:"nextCursor"`
	// IsLastPage is derived from the page being short. A final page that
	// happens to be exactly full reports false, and the next request
	// returns an empty last page.
	IsLastPage bool `json:"isLastPage"`
}

// Cursor is an opaque resume point within one ordered query. The zero
// value means "start from the first page".
type Cursor string

type cursorPayload struct {
	Sort     SortKey `json:"s"`
	Category string  `json:"c,omitempty"`
	ID       string  `json:"id"`
	Number   int64   `json:"n,omitempty"`
	Text     string  `json:"t,omitempty"`
}

// cursorFor captures the position of g within the ordering of q.
func cursorFor(q PageQuery, g *Game) Cursor {
	p := cursorPayload{Sort: q.Sort, Category: q.Filter.Category, ID: g.ID}
	switch q.Sort {
	case SortByPopularity:
		p.Number = g.Popularity
	case SortByName:
		p.Text = g.Name
	case SortByAddedDate:
		p.Text = g.AddedDate
	}
	data, _ := json.Marshal(p)
	return Cursor(base64.RawURLEncoding.EncodeToString(data))
}

func (c Cursor) decode(q PageQuery) (*cursorPayload, error) {
	if c == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var p cursorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if p.ID == "" {
		return nil, ErrInvalidCursor
	}
	if p.Sort != q.Sort || p.Category != q.Filter.Category {
		return nil, ErrCursorMismatch
	}
	return &p, nil
}

// newPage applies the short-page rule.
func newPage(items []*Game, q PageQuery) *Page {
	page := &Page{Items: items, IsLastPage: len(items) < q.Limit}
	if page.Items == nil {
		page.Items = []*Game{}
	}
	if n := len(items); n > 0 {
		page.NextCursor = cursorFor(q, items[n-1])
	}
	return page
}
