package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type AWSConfig struct {
	Region   string
	DynamoDB *dynamodb.Client
	S3       *s3.Client
}

// NewAWSConfig builds the service clients. A non-empty endpoint points both
// clients at a local emulator (DynamoDB Local, MinIO, LocalStack).
func NewAWSConfig(ctx context.Context, region, endpoint string) (*AWSConfig, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return &AWSConfig{
		Region: region,
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = awssdk.String(endpoint)
			}
		}),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = awssdk.String(endpoint)
				o.UsePathStyle = true
			}
		}),
	}, nil
}
