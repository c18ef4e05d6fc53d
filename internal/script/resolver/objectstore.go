package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig configures the s3:// loader
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Buckets   []string
	MaxBytes  int64
	Transport http.RoundTripper
}

// ObjectStoreLoader serves s3://bucket/key identifiers from an
// S3-compatible store. Connections always use TLS and only listed buckets
// are readable.
type ObjectStoreLoader struct {
	client   *minio.Client
	buckets  map[string]struct{}
	maxBytes int64
}

// NewObjectStoreLoader creates the loader. No request is made until Fetch.
func NewObjectStoreLoader(cfg ObjectStoreConfig) (*ObjectStoreLoader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object store loader: endpoint is required")
	}
	if len(cfg.Buckets) == 0 {
		return nil, errors.New("object store loader: at least one bucket must be allowed")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    true,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("object store loader: %w", err)
	}

	buckets := make(map[string]struct{}, len(cfg.Buckets))
	for _, b := range cfg.Buckets {
		if b = strings.TrimSpace(b); b != "" {
			buckets[b] = struct{}{}
		}
	}

	return &ObjectStoreLoader{client: client, buckets: buckets, maxBytes: cfg.MaxBytes}, nil
}

func (l *ObjectStoreLoader) Name() string { return "objectstore" }

func (l *ObjectStoreLoader) Matches(u *url.URL) bool {
	return u.Scheme == "s3"
}

func (l *ObjectStoreLoader) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	if _, ok := l.buckets[bucket]; !ok {
		return nil, rejectf("bucket %q is not allowed", bucket)
	}
	if key == "" {
		return nil, rejectf("missing object key")
	}

	obj, err := l.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, failf("get %s/%s: %v", bucket, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, failf("%s/%s: no such module", bucket, key)
		}
		return nil, failf("stat %s/%s: %v", bucket, key, err)
	}
	if l.maxBytes > 0 && info.Size > l.maxBytes {
		return nil, failf("%s/%s is %d bytes, limit is %d", bucket, key, info.Size, l.maxBytes)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, failf("read %s/%s: %v", bucket, key, err)
	}
	return data, nil
}
