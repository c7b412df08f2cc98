package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/systemstart/steppipe/pkg/env"
	"github.com/systemstart/steppipe/pkg/steps"
)

// Config configures the S3-compatible object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// ConfigFromEnv reads the STEPPIPE_S3_* variables.
func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("STEPPIPE_S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Endpoint:  env.String("STEPPIPE_S3_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("STEPPIPE_S3_ACCESS_KEY", ""),
		SecretKey: env.String("STEPPIPE_S3_SECRET_KEY", ""),
		Region:    env.String("STEPPIPE_S3_REGION", ""),
		UseSSL:    useSSL,
		Bucket:    env.String("STEPPIPE_S3_BUCKET", ""),
		Prefix:    env.String("STEPPIPE_S3_PREFIX", ""),
	}, nil
}

func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("STEPPIPE_S3_ENDPOINT is required")
	}
	if c.Bucket == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// NewClient connects a minio client for cfg.
func NewClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// MinioStore uploads artifacts as objects under Prefix in Bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewMinioStore connects to the store described by cfg.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, region: cfg.Region}, nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("minio store not initialized")
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Key returns the object key for an artifact path.
func (s *MinioStore) Key(p string) string {
	return path.Join(s.prefix, filepath.ToSlash(p))
}

// Persist uploads the artifact in a single PUT and returns its s3:// URL.
func (s *MinioStore) Persist(ctx context.Context, p string, a *steps.Artifact) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("minio store not initialized")
	}
	key := s.Key(p)
	opts := minio.PutObjectOptions{ContentType: contentType(p)}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)), opts); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
