package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader pushes archived sync-log batches to S3.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Uploader(cfg S3Config) Uploader {
	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	})
	return &s3Uploader{client: client, bucket: cfg.Bucket}
}

func (u *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	logger.Info("Storage:Upload:Success", "bucket", u.bucket, "key", key, "bytes", len(body))
	return nil
}
