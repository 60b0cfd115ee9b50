package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/config"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadTarget is a time-limited direct-upload destination. StorageKey is the
// object key the extraction service will later be pointed at.
type UploadTarget struct {
	StorageKey string
	URL        string
}

// TargetIssuer vends exactly one pre-signed upload target per requested
// filename, in the same order.
type TargetIssuer interface {
	RequestUploadTargets(ctx context.Context, filenames []string) ([]UploadTarget, error)
}

type s3TargetIssuer struct {
	client     *minio.Client
	bucketName string
	expiry     time.Duration
}

func NewS3TargetIssuer(cfg *config.Config) (TargetIssuer, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &s3TargetIssuer{
		client:     client,
		bucketName: cfg.S3BucketName,
		expiry:     cfg.PresignExpiry,
	}, nil
}

func (s *s3TargetIssuer) RequestUploadTargets(ctx context.Context, filenames []string) ([]UploadTarget, error) {
	targets := make([]UploadTarget, 0, len(filenames))

	for _, filename := range filenames {
		key := fmt.Sprintf("cases/%s/%s", utils.GenerateID(), filename)

		presigned, err := s.client.PresignedPutObject(ctx, s.bucketName, key, s.expiry)
		if err != nil {
			return nil, fmt.Errorf("failed to presign upload for %s: %w", filename, err)
		}

		targets = append(targets, UploadTarget{
			StorageKey: key,
			URL:        presigned.String(),
		})
	}

	return targets, nil
}
