package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ddb "turtle-internet/internal/infrastructure/aws/dynamodb"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps games and categories in two DynamoDB tables. Catalog
// ordering comes from the sort indexes created by ddb.GamesTableSchema, so
// equal sort keys come back in whatever order the index holds them.
type DynamoStore struct {
	client          DynamoAPI
	gamesTable      string
	categoriesTable string
}

func NewDynamoStore(client DynamoAPI, gamesTable, categoriesTable string) *DynamoStore {
	return &DynamoStore{
		client:          client,
		gamesTable:      gamesTable,
		categoriesTable: categoriesTable,
	}
}

func sortIndex(sortKey SortKey) (index, attr string) {
	switch sortKey {
	case SortByName:
		return ddb.IndexByName, "name"
	case SortByAddedDate:
		return ddb.IndexByAddedDate, "added_date"
	default:
		return ddb.IndexByPopularity, "popularity"
	}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func decodeGames(items []map[string]types.AttributeValue) ([]*Game, error) {
	games := make([]*Game, 0, len(items))
	for _, item := range items {
		var g Game
		if err := attributevalue.UnmarshalMap(item, &g); err != nil {
			return nil, fmt.Errorf("failed to decode game: %w", err)
		}
		if g.Categories == nil {
			g.Categories = Categories{}
		}
		games = append(games, &g)
	}
	return games, nil
}

func (s *DynamoStore) QueryPage(ctx context.Context, q PageQuery) (*Page, error) {
	after, err := q.Cursor.decode(q)
	if err != nil {
		return nil, err
	}

	index, attr := sortIndex(q.Sort)
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.gamesTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("catalog = :catalog"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":catalog": &types.AttributeValueMemberS{Value: ddb.CatalogPartition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(q.Limit)),
	}
	if q.Filter.Category != "" {
		input.FilterExpression = aws.String("contains(categories, :category)")
		input.ExpressionAttributeValues[":category"] = &types.AttributeValueMemberS{Value: q.Filter.Category}
	}
	if after != nil {
		input.ExclusiveStartKey = startKey(after, attr)
	}

	// Limit bounds the items read, not the items matched, so a filtered
	// query keeps reading until the page is full or the index runs out.
	items := make([]*Game, 0, q.Limit)
	for len(items) < q.Limit {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query games: %w", err)
		}
		games, err := decodeGames(out.Items)
		if err != nil {
			return nil, err
		}
		for _, g := range games {
			if len(items) == q.Limit {
				break
			}
			items = append(items, g)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return newPage(items, q), nil
}

// startKey rebuilds the index key of the item a cursor points at.
func startKey(p *cursorPayload, attr string) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		"id":      &types.AttributeValueMemberS{Value: p.ID},
		"catalog": &types.AttributeValueMemberS{Value: ddb.CatalogPartition},
	}
	if attr == "popularity" {
		key[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(p.Number, 10)}
	} else {
		key[attr] = &types.AttributeValueMemberS{Value: p.Text}
	}
	return key
}

func (s *DynamoStore) GetGame(ctx context.Context, id string) (*Game, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.gamesTable),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrGameNotFound
	}
	games, err := decodeGames([]map[string]types.AttributeValue{out.Item})
	if err != nil {
		return nil, err
	}
	return games[0], nil
}

func (s *DynamoStore) CreateGame(ctx context.Context, game *Game) error {
	item, err := attributevalue.MarshalMap(game)
	if err != nil {
		return fmt.Errorf("failed to encode game: %w", err)
	}
	item["catalog"] = &types.AttributeValueMemberS{Value: ddb.CatalogPartition}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.gamesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (s *DynamoStore) UpdateGame(ctx context.Context, game *Game) error {
	categories, err := game.Categories.MarshalDynamoDBAttributeValue()
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.gamesTable),
		Key:       idKey(game.ID),
		UpdateExpression: aws.String("SET #name = :name, image_url = :image_url, game_url = :game_url, " +
			"description = :description, categories = :categories, is_emulator = :is_emulator, #system = :system"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#name":   "name",
			"#system": "system",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: game.Name},
			":image_url":   &types.AttributeValueMemberS{Value: game.ImageURL},
			":game_url":    &types.AttributeValueMemberS{Value: game.GameURL},
			":description": &types.AttributeValueMemberS{Value: game.Description},
			":categories":  categories,
			":is_emulator": &types.AttributeValueMemberBOOL{Value: game.IsEmulator},
			":system":      &types.AttributeValueMemberS{Value: game.System},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrGameNotFound
		}
		return fmt.Errorf("failed to update game: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteGame(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.gamesTable),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrGameNotFound
		}
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

func (s *DynamoStore) IncrementPlay(ctx context.Context, id string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.gamesTable),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("ADD popularity :one, play_count :one"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrGameNotFound
		}
		return fmt.Errorf("failed to increment play: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListGames(ctx context.Context) ([]*Game, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.gamesTable),
		IndexName:              aws.String(ddb.IndexByName),
		KeyConditionExpression: aws.String("catalog = :catalog"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":catalog": &types.AttributeValueMemberS{Value: ddb.CatalogPartition},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var games []*Game
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list games: %w", err)
		}
		page, err := decodeGames(out.Items)
		if err != nil {
			return nil, err
		}
		games = append(games, page...)
	}
	return games, nil
}

func (s *DynamoStore) TopGames(ctx context.Context, n int) ([]*Game, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.gamesTable),
		IndexName:              aws.String(ddb.IndexByPlayCount),
		KeyConditionExpression: aws.String("catalog = :catalog"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":catalog": &types.AttributeValueMemberS{Value: ddb.CatalogPartition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(n)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query top games: %w", err)
	}
	return decodeGames(out.Items)
}

func (s *DynamoStore) ListCategories(ctx context.Context) ([]*Category, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.categoriesTable),
	})

	var categories []*Category
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}
		var page []*Category
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to decode categories: %w", err)
		}
		categories = append(categories, page...)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (s *DynamoStore) CreateCategory(ctx context.Context, category *Category) error {
	item, err := attributevalue.MarshalMap(category)
	if err != nil {
		return fmt.Errorf("failed to encode category: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.categoriesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteCategory(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.categoriesTable),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
