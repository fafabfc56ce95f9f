package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	apperrors "github.com/mattew90/sharpscale/errors"
)

// S3Client defines the minimal S3 interface used by the adapter.
// This allows injection of real aws-sdk-go-v2 clients or test doubles.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
}

// S3 rehosts fetched bytes into an S3-compatible bucket fronted by the
// document's origin (a same-origin CDN path).
type S3 struct {
	client    S3Client
	bucket    string
	urlPrefix string
}

// NewS3 creates an S3 rehoster.  client must not be nil; urlPrefix is the
// public prefix under which bucket objects are reachable same-origin.
func NewS3(client S3Client, bucket, urlPrefix string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 rehost: client must not be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 rehost: bucket must not be empty")
	}
	return &S3{client: client, bucket: bucket, urlPrefix: urlPrefix}, nil
}

func (s *S3) Rehost(ctx context.Context, name, mime string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "s3.rehost", err)
	}
	if err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), mime); err != nil {
		return "", apperrors.Transient("s3.rehost", err)
	}
	if s.urlPrefix == "" {
		return name, nil
	}
	return s.urlPrefix + "/" + name, nil
}
