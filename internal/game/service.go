package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"turtle-internet/internal/storage"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Service is the catalog API used by the HTTP handlers.
type Service struct {
	store            Store
	resolver         storage.Resolver
	placeholderImage string
	pageSize         int
	now              func() time.Time
	newID            func() string
}

// NewService wires a catalog service. resolver may be nil when no blob
// storage is configured, in which case storage references never resolve.
func NewService(store Store, resolver storage.Resolver, placeholderImage string, pageSize int) *Service {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return &Service{
		store:            store,
		resolver:         resolver,
		placeholderImage: placeholderImage,
		pageSize:         pageSize,
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// PageSize is the size used when a request does not name one.
func (s *Service) PageSize() int {
	return s.pageSize
}

// FetchPage returns one page of the catalog with storage references
// resolved into fetchable URLs.
func (s *Service) FetchPage(ctx context.Context, filter Filter, sort SortKey, cursor Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if sort == "" {
		sort = SortByPopularity
	}

	page, err := s.store.QueryPage(ctx, PageQuery{
		Filter: filter,
		Sort:   sort,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}

	var wg sync.WaitGroup
	for _, g := range page.Items {
		wg.Add(1)
		go func(g *Game) {
			defer wg.Done()
			s.resolve(ctx, g)
		}(g)
	}
	wg.Wait()

	return page, nil
}

// GetGame returns a single resolved game.
func (s *Service) GetGame(ctx context.Context, id string) (*Game, error) {
	g, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	s.resolve(ctx, g)
	return g, nil
}

// resolve rewrites storage references on g in place. Failures never drop
// the game: images fall back to the placeholder and emulator game URLs keep
// the raw reference.
func (s *Service) resolve(ctx context.Context, g *Game) {
	if storage.IsReference(g.ImageURL) {
		u, err := s.signedURL(ctx, g.ImageURL)
		if err != nil {
			slog.Warn("failed to resolve image", "game_id", g.ID, "ref", g.ImageURL, "error", err)
			u = s.placeholderImage
		}
		g.ImageURL = u
	}

	if g.IsEmulator && storage.IsReference(g.GameURL) {
		u, err := s.downloadPageURL(ctx, g.GameURL)
		if err != nil {
			slog.Warn("failed to resolve rom", "game_id", g.ID, "ref", g.GameURL, "error", err)
			return
		}
		g.GameURL = u
	}
}

func (s *Service) signedURL(ctx context.Context, ref string) (string, error) {
	if s.resolver == nil {
		return "", fmt.Errorf("no storage configured for %s", ref)
	}
	return s.resolver.SignedURL(ctx, ref)
}

func (s *Service) downloadPageURL(ctx context.Context, ref string) (string, error) {
	if s.resolver == nil {
		return "", fmt.Errorf("no storage configured for %s", ref)
	}
	return s.resolver.DownloadPageURL(ctx, ref)
}

// ListGames returns every game, unresolved, ordered by name.
func (s *Service) ListGames(ctx context.Context) ([]*Game, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (s *Service) CreateGame(ctx context.Context, in GameInput) (*Game, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	g := NewGame(s.newID(), in, s.now())
	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return g, nil
}

// UpdateGame replaces the editable fields of a game. Popularity, play count
// and the added date are kept as stored.
func (s *Service) UpdateGame(ctx context.Context, id string, in GameInput) (*Game, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	g, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Apply(in)

	if err := s.store.UpdateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	return g, nil
}

func (s *Service) DeleteGame(ctx context.Context, id string) error {
	return s.store.DeleteGame(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateCategory adds a label. Names are compared case-insensitively.
func (s *Service) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}

	existing, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryExists, c.Name)
		}
	}

	c := &Category{ID: s.newID(), Name: name}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a label. Games that carry it keep it.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}

type Dashboard struct {
	TotalGames      int `json:"totalGames"`
	TotalCategories int `json:"totalCategories"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return &Dashboard{TotalGames: len(games), TotalCategories: len(categories)}, nil
}
