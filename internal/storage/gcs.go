package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSClient reads gs://bucket/object sources.
type GCSClient struct {
	client *storage.Client
}

func NewGCSClient(ctx context.Context, credentialsPath string) (*GCSClient, error) {
	var client *storage.Client
	var err error

	if credentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSClient{client: client}, nil
}

// ParseGCSURL splits gs://bucket/path/to/object.
func ParseGCSURL(src string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(src, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URL: %s", src)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs:// URL: %s", src)
	}
	return bucket, object, nil
}

// ReadFile reads a whole object, capped at limit bytes.
func (g *GCSClient) ReadFile(ctx context.Context, bucket, object string, limit int64) ([]byte, error) {
	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("gs://%s/%s exceeds %d bytes", bucket, object, limit)
	}
	return data, nil
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
