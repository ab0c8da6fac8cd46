package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tubefetch/bot/internal/config"
)

// SignedURLTTL bounds how long a returned retrieval handle stays valid.
const SignedURLTTL = time.Hour

// S3Store implements ObjectStore backed by an S3-compatible service. Retrieval
// handles are presigned GET URLs.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	logger   *slog.Logger
}

// NewS3Store configures an uploader targeting the provided object store.
func NewS3Store(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if strings.TrimSpace(cfg.Endpoint) != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Store{
		client:   client,
		uploader: uploader,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

// Put uploads the local file and returns a presigned URL valid for SignedURLTTL.
func (s *S3Store) Put(ctx context.Context, localPath, name string) (string, error) {
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrStorage)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open source %s: %v", ErrStorage, localPath, err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", ErrStorage, key, err)
	}

	signed, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(SignedURLTTL))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", ErrStorage, key, err)
	}

	return signed.URL, nil
}

// Delete removes the named object; backend errors yield false.
func (s *S3Store) Delete(ctx context.Context, name string) bool {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimLeft(name, "/")),
	})
	if err != nil {
		s.logger.Warn("delete stored object", "name", name, "error", err)
		return false
	}
	return true
}

// Statistics lists the bucket and totals object sizes.
func (s *S3Store) Statistics(ctx context.Context) (Stats, error) {
	var stats Stats
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("%w: list bucket: %v", ErrStorage, err)
		}
		for _, obj := range page.Contents {
			stats.FileCount++
			if obj.Size != nil {
				stats.TotalBytes += *obj.Size
			}
		}
	}
	return stats, nil
}

var _ ObjectStore = (*S3Store)(nil)
