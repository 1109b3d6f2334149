package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultSignedURLTTL = 15 * time.Minute

// Presigner is implemented by *s3.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Resolver turns storage references into URLs a browser can fetch.
type Resolver interface {
	// SignedURL resolves ref into a short lived signed URL.
	SignedURL(ctx context.Context, ref string) (string, error)
	// DownloadPageURL resolves ref into the public download page URL that
	// the proxy relay accepts.
	DownloadPageURL(ctx context.Context, ref string) (string, error)
}

// S3Store signs GET requests for objects in S3.
type S3Store struct {
	presigner     Presigner
	defaultBucket string
	publicBase    string
	ttl           time.Duration
}

func NewS3Store(presigner Presigner, defaultBucket, publicBase string, ttl time.Duration) *S3Store {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &S3Store{
		presigner:     presigner,
		defaultBucket: defaultBucket,
		publicBase:    publicBase,
		ttl:           ttl,
	}
}

// SignObject presigns a GET for obj. Objects without a bucket live in the
// default bucket.
func (s *S3Store) SignObject(ctx context.Context, obj Object) (string, error) {
	if obj.Bucket == "" {
		obj.Bucket = s.defaultBucket
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", obj, err)
	}
	return req.URL, nil
}

func (s *S3Store) SignedURL(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	obj, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	return s.SignObject(ctx, obj)
}

func (s *S3Store) DownloadPageURL(_ context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	obj, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	return DownloadPageURL(s.publicBase, obj), nil
}

// TTL is how long signed URLs stay valid.
func (s *S3Store) TTL() time.Duration {
	return s.ttl
}
