package internal

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStoreConfig configures the S3-compatible bucket covers are written
// to (spec.md §4.7's "processed covers are written to object storage").
// Endpoint is set for R2/MinIO-style deployments; left empty it targets AWS.
type ObjectStoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string
}

// ObjectStore wraps an s3.Client scoped to one bucket.
type ObjectStore struct {
	client *s3.Client
	bucket string
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	optFns := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &ObjectStore{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// PutCover uploads one resized cover variant under a stable key and returns
// the key (not a presigned URL — spec.md §6's /covers/:isbn/:size serves
// these directly, it doesn't need expiring links).
func (s *ObjectStore) PutCover(ctx context.Context, isbn, size string, data []byte, contentType string) (string, error) {
	key := coverKey(isbn, size)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put cover %s/%s: %w", isbn, size, err)
	}
	return key, nil
}

// GetCover retrieves a previously stored cover variant.
func (s *ObjectStore) GetCover(ctx context.Context, isbn, size string) ([]byte, string, error) {
	key := coverKey(isbn, size)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get cover %s/%s: %w", isbn, size, err)
	}
	defer out.Body.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("read cover body %s/%s: %w", isbn, size, err)
	}
	return buf.Bytes(), aws.ToString(out.ContentType), nil
}

func coverKey(isbn, size string) string {
	return fmt.Sprintf("covers/%s/%s.jpg", isbn, size)
}
