package reference

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"

	"github.com/systemstart/steppipe/pkg/api"
)

// NewMinioProvider retrieves parameter files stored under prefix in bucket.
func NewMinioProvider(client *minio.Client, bucket, prefix string, logger *slog.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return NewProvider(func(ctx context.Context) ([]*api.ParameterFile, error) {
		return listObjects(ctx, client, bucket, prefix)
	}, logger), nil
}

func listObjects(ctx context.Context, client *minio.Client, bucket, prefix string) ([]*api.ParameterFile, error) {
	var files []*api.ParameterFile
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s/%s: %w", bucket, prefix, obj.Err)
		}
		format, err := api.FormatOf(obj.Key)
		if err != nil {
			continue
		}
		pf, err := fetch(ctx, client, bucket, obj.Key, format)
		if err != nil {
			return nil, err
		}
		files = append(files, pf)
	}
	return files, nil
}

func fetch(ctx context.Context, client *minio.Client, bucket, key, format string) (*api.ParameterFile, error) {
	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	label := "s3://" + bucket + "/" + key
	pf, err := api.ParseParameterFile(data, format, label)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", label, err)
	}
	pf.FilePath = label
	return pf, nil
}
