package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Provider = (*MinioProvider)(nil)

type MinioProvider struct {
	client *minio.Client
	bucket string
	// publicBaseURL is the externally reachable root for served objects,
	// e.g. https://files.example.com
	publicBaseURL string
}

// NewMinioProvider initializes the MinIO client.
// In production, pass 'useSSL: true' for S3/Cloud.
func NewMinioProvider(endpoint, accessKeyID, secretAccessKey, bucket, publicBaseURL string, useSSL bool) (Provider, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioProvider{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Put streams the object up and returns its stable reference.
func (m *MinioProvider) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, mapMinioError(err)
	}

	return Object{
		Key: info.Key,
		URL: fmt.Sprintf("%s/%s/%s", m.publicBaseURL, m.bucket, info.Key),
	}, nil
}

// Remove deletes an object. MinIO treats removing a missing key as success,
// which matches the Provider contract.
func (m *MinioProvider) Remove(ctx context.Context, key string) error {
	opts := minio.RemoveObjectOptions{
		GovernanceBypass: true, // Useful if you have object locking enabled
	}

	if err := m.client.RemoveObject(ctx, m.bucket, key, opts); err != nil {
		return mapMinioError(err)
	}
	return nil
}

// mapMinioError translates MinIO SDK errors into our domain errors
func mapMinioError(err error) error {
	if err == nil {
		return nil
	}

	errResp := minio.ToErrorResponse(err)

	switch errResp.Code {
	case "NoSuchKey":
		return ErrNotFound
	case "AccessDenied":
		return ErrAccessDenied
	}

	// Also check HTTP status codes if Code is empty
	if errResp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if errResp.StatusCode == http.StatusForbidden {
		return ErrAccessDenied
	}

	return fmt.Errorf("storage provider error: %w", err)
}
