package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hasnin090/iq-sub003/internal/config"
	"github.com/hasnin090/iq-sub003/internal/logging"
)

const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

// minioStorage implements Storage using an S3-compatible backend (MinIO, Supabase Storage, AWS S3).
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client     *minio.Client
	publicBase string
	log        *logging.Logger
}

// NewMinIO creates the remote object store client. It does not contact the
// backend; call EnsureBucket before the first upload.
func NewMinIO(cfg config.MinIOConfig, log *logging.Logger) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if log == nil {
		log = logging.Nop()
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(cli.EndpointURL().String(), "/")
	}
	return &minioStorage{client: cli, publicBase: base, log: log}, nil
}

func (m *minioStorage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create bucket: %w", err)
		}
		m.log.Info("bucket_created", map[string]any{"bucket": bucket})
	}
	if err := m.client.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
		return fmt.Errorf("set bucket policy: %w", err)
	}
	return nil
}

func (m *minioStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, opt PutObjectOptions) (string, bool) {
	contentType := opt.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, bucket, key, r, opt.Size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		m.log.Error("upload_failed", err, map[string]any{"bucket": bucket, "key": key})
		return "", false
	}
	return m.PublicURL(bucket, key), true
}

func (m *minioStorage) PublicURL(bucket, key string) string {
	return publicURL(m.publicBase, bucket, key)
}

func (m *minioStorage) IsProviderURL(u string) bool {
	return hasBase(m.publicBase, u)
}

func publicURL(base, bucket, key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

func hasBase(base, u string) bool {
	if base == "" {
		return false
	}
	return strings.HasPrefix(u, base+"/")
}

func isAlreadyExists(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	}
	return false
}
