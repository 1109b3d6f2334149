package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SortKey names the attribute a catalog page is ordered by. Pages are
// always returned in descending order of the key.
type SortKey string

const (
	SortByPopularity SortKey = "popularity"
	SortByName       SortKey = "name"
	SortByAddedDate  SortKey = "addedDate"
)

// ParseSortKey maps a query value onto a SortKey. An empty value selects
// popularity, which is what the catalog opens with.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortByPopularity, nil
	case SortByPopularity, SortByName, SortByAddedDate:
		return SortKey(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
}

// Categories is the canonical in-memory form of a game's category labels.
// Documents and admin input may carry either a list or a comma joined
// string; both decode into the same trimmed list.
type Categories []string

// ParseCategories splits a comma joined label string.
func ParseCategories(s string) Categories {
	out := Categories{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeCategories(in []string) Categories {
	out := Categories{}
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether name is one of the labels, exact match.
func (c Categories) Contains(name string) bool {
	for _, label := range c {
		if label == name {
			return true
		}
	}
	return false
}

func (c *Categories) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = normalizeCategories(list)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("categories must be a list or a comma separated string")
	}
	*c = ParseCategories(joined)
	return nil
}

func (c Categories) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(c))
}

// UnmarshalDynamoDBAttributeValue accepts L, SS and S representations.
func (c *Categories) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberL:
		list := make([]string, 0, len(v.Value))
		for _, item := range v.Value {
			s, ok := item.(*types.AttributeValueMemberS)
			if !ok {
				return fmt.Errorf("unexpected category element %T", item)
			}
			list = append(list, s.Value)
		}
		*c = normalizeCategories(list)
	case *types.AttributeValueMemberSS:
		*c = normalizeCategories(v.Value)
	case *types.AttributeValueMemberS:
		*c = ParseCategories(v.Value)
	case *types.AttributeValueMemberNULL:
		*c = Categories{}
	default:
		return fmt.Errorf("unexpected categories attribute %T", av)
	}
	return nil
}

// MarshalDynamoDBAttributeValue always writes a list.
func (c Categories) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	list := make([]types.AttributeValue, 0, len(c))
	for _, label := range c {
		list = append(list, &types.AttributeValueMemberS{Value: label})
	}
	return &types.AttributeValueMemberL{Value: list}, nil
}

// Game is a catalog entry.
type Game struct {
	ID          string     `json:"id" dynamodbav:"id"`
	Name        string     `json:"name" dynamodbav:"name"`
	ImageURL    string     `json:"imageUrl" dynamodbav:"image_url"`
	GameURL     string     `json:"gameUrl" dynamodbav:"game_url"`
	Description string     `json:"description" dynamodbav:"description"`
	Categories  Categories `json:"categories" dynamodbav:"categories"`
	Popularity  int64      `json:"popularity" dynamodbav:"popularity"`
	PlayCount   int64      `json:"playCount" dynamodbav:"play_count"`
	AddedDate   string     `json:"addedDate" dynamodbav:"added_date"`
	IsEmulator  bool       `json:"isEmulator" dynamodbav:"is_emulator"`
	System      string     `json:"system" dynamodbav:"system"`
}

// Category is an admin managed label. Games reference categories by name,
// so deleting one leaves existing games untouched.
type Category struct {
	ID   string `json:"id" dynamodbav:"id"`
	Name string `json:"name" dynamodbav:"name"`
}

// GameInput carries the admin editable fields of a game. Counters and the
// creation date are owned by the store and never accepted from input.
type GameInput struct {
	Name        string     `json:"name"`
	ImageURL    string     `json:"imageUrl"`
	GameURL     string     `json:"gameUrl"`
	Description string     `json:"description"`
	Categories  Categories `json:"categories"`
	IsEmulator  bool       `json:"isEmulator"`
	System      string     `json:"system"`
}

func (in *GameInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.GameURL = strings.TrimSpace(in.GameURL)
	in.Description = strings.TrimSpace(in.Description)
	in.System = strings.TrimSpace(in.System)
	in.Categories = normalizeCategories(in.Categories)
	if !in.IsEmulator {
		in.System = ""
	}
}

// Validate expects a normalized input.
func (in GameInput) Validate() error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidGame)
	case in.ImageURL == "":
		return fmt.Errorf("%w: imageUrl is required", ErrInvalidGame)
	case in.GameURL == "":
		return fmt.Errorf("%w: gameUrl is required", ErrInvalidGame)
	case in.IsEmulator && in.System == "":
		return fmt.Errorf("%w: system is required for emulator titles", ErrInvalidGame)
	}
	return nil
}

// NewGame builds a fresh catalog entry from admin input.
func NewGame(id string, in GameInput, now time.Time) *Game {
	return &Game{
		ID:          id,
		Name:        in.Name,
		ImageURL:    in.ImageURL,
		GameURL:     in.GameURL,
		Description: in.Description,
		Categories:  in.Categories,
		AddedDate:   now.UTC().Format(time.RFC3339),
		IsEmulator:  in.IsEmulator,
		System:      in.System,
	}
}

// Apply copies the editable fields of in onto g.
func (g *Game) Apply(in GameInput) {
	g.Name = in.Name
	g.ImageURL = in.ImageURL
	g.GameURL = in.GameURL
	g.Description = in.Description
	g.Categories = in.Categories
	g.IsEmulator = in.IsEmulator
	g.System = in.System
}
