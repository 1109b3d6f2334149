package game

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps the catalog in process memory. It backs tests and the
// "memory" store driver used for local development.
//
// Equal sort keys are ordered by descending id.
type MemoryStore struct {
	mu         sync.RWMutex
	games      map[string]*Game
	categories map[string]*Category
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:      make(map[string]*Game),
		categories: make(map[string]*Category),
	}
}

func copyGame(g *Game) *Game {
	c := *g
	c.Categories = append(Categories{}, g.Categories...)
	return &c
}

// compareKey orders a and b by sort key only.
func compareKey(sortKey SortKey, a, b *Game) int {
	switch sortKey {
	case SortByName:
		return strings.Compare(a.Name, b.Name)
	case SortByAddedDate:
		return strings.Compare(a.AddedDate, b.AddedDate)
	default:
		switch {
		case a.Popularity < b.Popularity:
			return -1
		case a.Popularity > b.Popularity:
			return 1
		}
		return 0
	}
}

func (s *MemoryStore) QueryPage(_ context.Context, q PageQuery) (*Page, error) {
	after, err := q.Cursor.decode(q)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		if q.Filter.Category != "" && !g.Categories.Contains(q.Filter.Category) {
			continue
		}
		matched = append(matched, copyGame(g))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if c := compareKey(q.Sort, matched[i], matched[j]); c != 0 {
			return c > 0
		}
		return matched[i].ID > matched[j].ID
	})

	start := 0
	if after != nil {
		pivot := &Game{ID: after.ID, Popularity: after.Number, Name: after.Text, AddedDate: after.Text}
		start = sort.Search(len(matched), func(i int) bool {
			c := compareKey(q.Sort, matched[i], pivot)
			return c < 0 || (c == 0 && matched[i].ID < pivot.ID)
		})
	}

	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return newPage(matched[start:end], q), nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return copyGame(g), nil
}

func (s *MemoryStore) CreateGame(_ context.Context, game *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games[game.ID] = copyGame(game)
	return nil
}

func (s *MemoryStore) UpdateGame(_ context.Context, game *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.games[game.ID]
	if !ok {
		return ErrGameNotFound
	}
	updated := copyGame(game)
	updated.Popularity = existing.Popularity
	updated.PlayCount = existing.PlayCount
	updated.AddedDate = existing.AddedDate
	s.games[game.ID] = updated
	return nil
}

func (s *MemoryStore) DeleteGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[id]; !ok {
		return ErrGameNotFound
	}
	delete(s.games, id)
	return nil
}

func (s *MemoryStore) IncrementPlay(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return ErrGameNotFound
	}
	g.Popularity++
	g.PlayCount++
	return nil
}

func (s *MemoryStore) ListGames(_ context.Context) ([]*Game, error) {
	s.mu.RLock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, copyGame(g))
	}
	s.mu.RUnlock()

	sort.Slice(games, func(i, j int) bool {
		if games[i].Name != games[j].Name {
			return games[i].Name < games[j].Name
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

func (s *MemoryStore) TopGames(ctx context.Context, n int) ([]*Game, error) {
	games, err := s.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].PlayCount > games[j].PlayCount
	})
	if len(games) > n {
		games = games[:n]
	}
	return games, nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]*Category, 0, len(s.categories))
	for _, c := range s.categories {
		cc := *c
		categories = append(categories, &cc)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, category *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *category
	s.categories[c.ID] = &c
	return nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(s.categories, id)
	return nil
}
