// Package storage issues presigned download URLs for deliverable objects.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reviewport/api/internal/config"
)

// Presigner hands out short-lived GET URLs so file bytes never pass through
// the portal process.
type Presigner struct {
	client *minio.Client
	bucket string
}

func New(cfg config.StorageConfig) (*Presigner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &Presigner{client: client, bucket: cfg.Bucket}, nil
}

// DownloadURL returns a presigned GET URL for objectKey, with a content
// disposition so browsers save the file under its portal name.
func (p *Presigner) DownloadURL(ctx context.Context, objectKey, downloadName string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := p.client.PresignedGetObject(ctx, p.bucket, objectKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}
