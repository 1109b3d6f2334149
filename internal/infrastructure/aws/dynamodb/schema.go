package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CatalogPartition is the constant hash key shared by every game so the
// sort indexes below order the whole catalog.
const CatalogPartition = "games"

// Index names on the games table, one per sortable attribute.
const (
	IndexByPopularity = "by_popularity"
	IndexByName       = "by_name"
	IndexByAddedDate  = "by_added_date"
	IndexByPlayCount  = "by_play_count"
)

// TableAPI is the part of the DynamoDB client needed to manage tables.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type DynamoDBService struct {
	client TableAPI
}

func NewDynamoDBService(client TableAPI) *DynamoDBService {
	return &DynamoDBService{client: client}
}

// CreateTables creates the games and categories tables. Tables that
// already exist are left untouched.
func (s *DynamoDBService) CreateTables(ctx context.Context, gamesTable, categoriesTable string) error {
	for _, input := range []*dynamodb.CreateTableInput{
		GamesTableSchema(gamesTable),
		CategoriesTableSchema(categoriesTable),
	} {
		_, err := s.client.CreateTable(ctx, input)
		if err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				continue
			}
			return fmt.Errorf("failed to create table %s: %w", aws.ToString(input.TableName), err)
		}
	}

	return nil
}

func GamesTableSchema(name string) *dynamodb.CreateTableInput {
	sortIndex := func(index, attr string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(index),
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String("catalog"),
					KeyType:       types.KeyTypeHash,
				},
				{
					AttributeName: aws.String(attr),
					KeyType:       types.KeyTypeRange,
				},
			},
			Projection: &types.Projection{
				ProjectionType: types.ProjectionTypeAll,
			},
		}
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("catalog"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("popularity"), AttributeType: types.ScalarAttributeTypeN},
			{AttributeName: aws.String("name"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("added_date"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("play_count"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			sortIndex(IndexByPopularity, "popularity"),
			sortIndex(IndexByName, "name"),
			sortIndex(IndexByAddedDate, "added_date"),
			sortIndex(IndexByPlayCount, "play_count"),
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

func CategoriesTableSchema(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}
