package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTableAPI struct {
	mock.Mock
}

func (m *MockTableAPI) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, aws.ToString(params.TableName))
	return &dynamodb.CreateTableOutput{}, args.Error(0)
}

func TestGamesTableSchema(t *testing.T) {
	schema := GamesTableSchema("games")

	assert.Equal(t, "games", aws.ToString(schema.TableName))
	require.Len(t, schema.GlobalSecondaryIndexes, 4)

	indexes := map[string]string{}
	for _, gsi := range schema.GlobalSecondaryIndexes {
		require.Len(t, gsi.KeySchema, 2)
		assert.Equal(t, "catalog", aws.ToString(gsi.KeySchema[0].AttributeName))
		indexes[aws.ToString(gsi.IndexName)] = aws.ToString(gsi.KeySchema[1].AttributeName)
	}
	assert.Equal(t, map[string]string{
		IndexByPopularity: "popularity",
		IndexByName:       "name",
		IndexByAddedDate:  "added_date",
		IndexByPlayCount:  "play_count",
	}, indexes)
}

func TestCreateTables(t *testing.T) {
	t.Run("creates both tables", func(t *testing.T) {
		api := new(MockTableAPI)
		api.On("CreateTable", mock.Anything, "games").Return(nil)
		api.On("CreateTable", mock.Anything, "categories").Return(nil)

		err := NewDynamoDBService(api).CreateTables(context.Background(), "games", "categories")
		require.NoError(t, err)
		api.AssertExpectations(t)
	})

	t.Run("existing table is skipped", func(t *testing.T) {
		api := new(MockTableAPI)
		api.On("CreateTable", mock.Anything, "games").Return(&types.ResourceInUseException{Message: aws.String("exists")})
		api.On("CreateTable", mock.Anything, "categories").Return(nil)

		err := NewDynamoDBService(api).CreateTables(context.Background(), "games", "categories")
		require.NoError(t, err)
		api.AssertExpectations(t)
	})

	t.Run("other errors are returned", func(t *testing.T) {
		api := new(MockTableAPI)
		api.On("CreateTable", mock.Anything, "games").Return(errors.New("access denied"))

		err := NewDynamoDBService(api).CreateTables(context.Background(), "games", "categories")
		assert.ErrorContains(t, err, "failed to create table games")
	})
}
