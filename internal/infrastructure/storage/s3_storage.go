// Package storage keeps customer evidence (photos and videos) in S3-compatible
// object storage. Customers upload through presigned PUT URLs; submissions
// are checked against the bucket before a return request is accepted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	infraconfig "github.com/erp/returns/internal/infrastructure/config"
	"go.uber.org/zap"
)

// EvidencePrefix is the key prefix every evidence object lives under
const EvidencePrefix = "evidence/"

var _ returns.EvidenceStorage = (*S3EvidenceStorage)(nil)

// S3EvidenceStorage implements returns.EvidenceStorage on any S3-compatible
// backend (AWS S3, MinIO, RustFS)
type S3EvidenceStorage struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	endpoint          *url.URL
	usePathStyle      bool
	presignExpiration time.Duration
	clock             shared.Clock
	logger            *zap.Logger
}

// S3EvidenceStorageOption is a functional option for configuring S3EvidenceStorage
type S3EvidenceStorageOption func(*S3EvidenceStorage)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3EvidenceStorageOption {
	return func(s *S3EvidenceStorage) {
		s.logger = logger
	}
}

// WithClock sets the clock used for expiry timestamps
func WithClock(clock shared.Clock) S3EvidenceStorageOption {
	return func(s *S3EvidenceStorage) {
		s.clock = clock
	}
}

// NewS3EvidenceStorage creates the evidence storage from configuration
func NewS3EvidenceStorage(cfg *infraconfig.StorageConfig, opts ...S3EvidenceStorageOption) (*S3EvidenceStorage, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpointURL, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpointURL.String())
	})

	s := &S3EvidenceStorage{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		endpoint:          endpointURL,
		usePathStyle:      cfg.UsePathStyle,
		presignExpiration: cfg.PresignExpiry,
		clock:             shared.SystemClock{},
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presignExpiration <= 0 {
		s.presignExpiration = 15 * time.Minute
	}
	return s, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3EvidenceStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating evidence bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PresignUpload returns a presigned PUT URL for an evidence key
func (s *S3EvidenceStorage) PresignUpload(ctx context.Context, key, contentType string) (returns.EvidenceUpload, error) {
	if !strings.HasPrefix(key, EvidencePrefix) {
		return returns.EvidenceUpload{}, returns.NewValidationError("evidence key must start with " + EvidencePrefix)
	}

	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignExpiration))
	if err != nil {
		return returns.EvidenceUpload{}, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return returns.EvidenceUpload{
		Key:       key,
		UploadURL: req.URL,
		ObjectURL: s.ObjectURL(key),
		ExpiresAt: s.clock.Now().Add(s.presignExpiration),
	}, nil
}

// ObjectURL returns the stable URL of an evidence object
func (s *S3EvidenceStorage) ObjectURL(key string) string {
	u := *s.endpoint
	if s.usePathStyle {
		u.Path = "/" + s.bucket + "/" + key
	} else {
		u.Host = s.bucket + "." + u.Host
		u.Path = "/" + key
	}
	return u.String()
}

// KeyFromURL maps an evidence URL back to its object key. URLs that do not
// point into the evidence bucket are rejected.
func (s *S3EvidenceStorage) KeyFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", returns.NewValidationError("evidence url is malformed: " + raw)
	}

	var key string
	switch {
	case s.usePathStyle && strings.EqualFold(u.Host, s.endpoint.Host):
		key = strings.TrimPrefix(u.Path, "/"+s.bucket+"/")
		if key == u.Path {
			key = ""
		}
	case !s.usePathStyle && strings.EqualFold(u.Host, s.bucket+"."+s.endpoint.Host):
		key = strings.TrimPrefix(u.Path, "/")
	}
	if key == "" || !strings.HasPrefix(key, EvidencePrefix) {
		return "", returns.NewValidationError("evidence url is not in the evidence store: " + raw)
	}
	return key, nil
}

// VerifyEvidence checks that every URL names an existing evidence object
func (s *S3EvidenceStorage) VerifyEvidence(ctx context.Context, urls []string) error {
	for _, raw := range urls {
		key, err := s.KeyFromURL(raw)
		if err != nil {
			return err
		}
		exists, err := s.ObjectExists(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			return returns.NewValidationError("evidence has not been uploaded: " + raw)
		}
	}
	return nil
}

// ObjectExists checks if an object exists in the bucket
func (s *S3EvidenceStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		// some S3-compatible services report missing keys differently
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check evidence object: %w", err)
	}
	return true, nil
}

// Bucket returns the bucket name
func (s *S3EvidenceStorage) Bucket() string {
	return s.bucket
}
