package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config carries the subset of service configuration the S3 collaborator
// needs. Endpoint and path-style are for S3-compatible stores (MinIO).
type S3Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
	AssetPrefix  string
}

// S3Storage implements Storage on top of an S3 bucket. Assets live under
// AssetPrefix; exported artifacts under the keys the publisher chooses.
type S3Storage struct {
	svc         *s3.S3
	uploader    *s3manager.Uploader
	bucket      string
	assetPrefix string
	logger      *slog.Logger
}

func NewS3Storage(cfg S3Config, logger *slog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	prefix := cfg.AssetPrefix
	if prefix == "" {
		prefix = "assets/"
	}

	return &S3Storage{
		svc:         s3.New(sess),
		uploader:    s3manager.NewUploader(sess),
		bucket:      cfg.Bucket,
		assetPrefix: prefix,
		logger:      logger,
	}, nil
}

func (s *S3Storage) SignedURL(ctx context.Context, assetID string) (string, error) {
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.assetPrefix + assetID),
	})
	req.SetContext(ctx)

	url, err := req.Presign(15 * time.Minute)
	if err != nil {
		return "", fmt.Errorf("presign asset %s: %w", assetID, err)
	}
	return url, nil
}

func (s *S3Storage) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload to s3 key %s: %w", key, err)
	}

	if s.logger != nil {
		s.logger.Info("artifact uploaded", "bucket", s.bucket, "key", key)
	}
	return nil
}

func (s *S3Storage) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign key %s: %w", key, err)
	}
	return url, nil
}
