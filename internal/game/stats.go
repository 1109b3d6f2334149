package game

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

const topGamesLimit = 10

// CategoryCount is one bar of the category histogram.
type CategoryCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type Stats struct {
	TotalPlays int64           `json:"totalPlays"`
	TopGames   []*Game         `json:"topGames"`
	Categories []CategoryCount `json:"categories"`
}

// Stats aggregates play counts over the whole catalog.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	top, err := s.store.TopGames(ctx, topGamesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top games: %w", err)
	}
	return buildStats(games, top), nil
}

func buildStats(games, top []*Game) *Stats {
	stats := &Stats{TopGames: top}
	if stats.TopGames == nil {
		stats.TopGames = []*Game{}
	}

	counts := make(map[string]int)
	for _, g := range games {
		stats.TotalPlays += g.PlayCount
		for _, c := range g.Categories {
			counts[c]++
		}
	}

	names := maps.Keys(counts)
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	stats.Categories = make([]CategoryCount, 0, len(names))
	for _, name := range names {
		stats.Categories = append(stats.Categories, CategoryCount{Name: name, Value: counts[name]})
	}
	return stats
}
