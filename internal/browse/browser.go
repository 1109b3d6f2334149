// Package browse holds the session state of one catalog viewer: the
// accumulated list behind "load more", the active sort and category, the
// search box and display preferences.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"turtle-internet/internal/game"
)

// ErrFetchInProgress is returned by LoadMore while another fetch of the
// same Browser is running. The dropped call leaves state untouched.
var ErrFetchInProgress = errors.New("fetch already in progress")

// ErrUnknownGame is returned by Play for an id that is not in the list.
var ErrUnknownGame = errors.New("game is not in the loaded list")

// Fetcher loads catalog pages.
type Fetcher interface {
	FetchPage(ctx context.Context, category string, sort game.SortKey, cursor game.Cursor, limit int) (*game.Page, error)
}

// PlayReporter records that a game was played.
type PlayReporter interface {
	RecordPlay(ctx context.Context, id string) error
}

// State is a JSON friendly snapshot of a Browser.
type State struct {
	SearchTerm string       `json:"searchTerm"`
	Sort       game.SortKey `json:"sortBy"`
	Category   string       `json:"selectedCategory"`
	DarkMode   bool         `json:"darkMode"`
	IsAdmin    bool         `json:"isAdmin"`
	Items      []*game.Game `json:"games"`
	Cursor     game.Cursor  `json:"cursor"`
	HasMore    bool         `json:"hasMore"`
	Page       int          `json:"page"`
	Loading    bool         `json:"loading"`
}

// Browser keeps at most one page fetch in flight per query. A query change
// abandons the fetch of the previous query instead of waiting for it, so
// for a moment the old request and the new one may both be outstanding;
// the old result is dropped when it returns.
type Browser struct {
	fetcher  Fetcher
	plays    PlayReporter
	pageSize int
	fold     cases.Caser

	mu    sync.Mutex
	state State
	// generation is bumped whenever the query changes so a fetch started
	// for an older query is discarded when it returns.
	generation int
	background sync.WaitGroup
}

func New(fetcher Fetcher, plays PlayReporter, pageSize int) *Browser {
	return &Browser{
		fetcher:  fetcher,
		plays:    plays,
		pageSize: pageSize,
		fold:     cases.Fold(),
		state: State{
			Sort:    game.SortByPopularity,
			Items:   []*game.Game{},
			HasMore: true,
		},
	}
}

// State returns a copy of the current state.
func (b *Browser) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	s.Items = append([]*game.Game(nil), b.state.Items...)
	return s
}

// LoadMore fetches the page after the current cursor and merges it into the
// list. It returns ErrFetchInProgress without a network call when a fetch
// is already running, and does nothing once the last page has been seen.
func (b *Browser) LoadMore(ctx context.Context) error {
	b.mu.Lock()
	if b.state.Loading {
		b.mu.Unlock()
		return ErrFetchInProgress
	}
	if !b.state.HasMore {
		b.mu.Unlock()
		return nil
	}
	b.state.Loading = true
	gen := b.generation
	category, sort, cursor := b.state.Category, b.state.Sort, b.state.Cursor
	b.mu.Unlock()

	page, err := b.fetcher.FetchPage(ctx, category, sort, cursor, b.pageSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return nil
	}
	b.state.Loading = false
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}

	b.state.Items = merge(b.state.Items, page.Items)
	if page.NextCursor != "" {
		b.state.Cursor = page.NextCursor
	}
	b.state.HasMore = !page.IsLastPage
	b.state.Page++
	return nil
}

// merge appends next to list, de-duplicating by id. A game seen again keeps
// its original position but takes the newer data.
func merge(list, next []*game.Game) []*game.Game {
	index := make(map[string]int, len(list)+len(next))
	out := make([]*game.Game, 0, len(list)+len(next))
	add := func(g *game.Game) {
		if i, ok := index[g.ID]; ok {
			out[i] = g
			return
		}
		index[g.ID] = len(out)
		out = append(out, g)
	}
	for _, g := range list {
		add(g)
	}
	for _, g := range next {
		add(g)
	}
	return out
}

// reset clears the list and cursor for a new query. Callers hold mu.
func (b *Browser) reset() {
	b.generation++
	b.state.Items = []*game.Game{}
	b.state.Cursor = ""
	b.state.HasMore = true
	b.state.Page = 0
	b.state.Loading = false
}

// SetSort switches the ordering and loads its first page.
func (b *Browser) SetSort(ctx context.Context, sort game.SortKey) error {
	b.mu.Lock()
	category := b.state.Category
	b.mu.Unlock()
	return b.SetQuery(ctx, category, sort)
}

// SetCategory switches the category filter and loads its first page. An
// empty category shows every game.
func (b *Browser) SetCategory(ctx context.Context, category string) error {
	b.mu.Lock()
	sort := b.state.Sort
	b.mu.Unlock()
	return b.SetQuery(ctx, category, sort)
}

// SetQuery replaces both category and sort, then loads the first page.
func (b *Browser) SetQuery(ctx context.Context, category string, sort game.SortKey) error {
	b.mu.Lock()
	b.state.Category = category
	b.state.Sort = sort
	b.reset()
	b.mu.Unlock()
	return b.LoadMore(ctx)
}

func (b *Browser) SetSearch(term string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.SearchTerm = term
}

func (b *Browser) ToggleDarkMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.DarkMode = !b.state.DarkMode
	return b.state.DarkMode
}

func (b *Browser) SetAdmin(admin bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.IsAdmin = admin
}

// Visible returns the loaded games matching the search term by name or
// category, ignoring case.
func (b *Browser) Visible() []*game.Game {
	b.mu.Lock()
	defer b.mu.Unlock()

	term := b.fold.String(strings.TrimSpace(b.state.SearchTerm))
	if term == "" {
		return append([]*game.Game{}, b.state.Items...)
	}

	var out []*game.Game
	for _, g := range b.state.Items {
		if b.matches(g, term) {
			out = append(out, g)
		}
	}
	return out
}

func (b *Browser) matches(g *game.Game, term string) bool {
	if strings.Contains(b.fold.String(g.Name), term) {
		return true
	}
	for _, c := range g.Categories {
		if strings.Contains(b.fold.String(c), term) {
			return true
		}
	}
	return false
}

// Play returns the game to launch and reports the play in the background.
// Reporting failures are logged and never reach the caller.
func (b *Browser) Play(ctx context.Context, id string) (*game.Game, error) {
	b.mu.Lock()
	var selected *game.Game
	for _, g := range b.state.Items {
		if g.ID == id {
			selected = g
			break
		}
	}
	b.mu.Unlock()

	if selected == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}

	ctx = context.WithoutCancel(ctx)
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		if err := b.plays.RecordPlay(ctx, id); err != nil {
			slog.Warn("failed to report play", "game_id", id, "error", err)
		}
	}()

	return selected, nil
}

// Wait blocks until background play reports have finished.
func (b *Browser) Wait() {
	b.background.Wait()
}
