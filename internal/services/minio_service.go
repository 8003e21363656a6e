package services

import (
	"bytes"
	"context"
	"io"
	"time"

	"billdesk/internal/common"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const pdfContentType = "application/pdf"

// DocumentStore persists rendered invoices.
type DocumentStore interface {
	Put(ctx context.Context, name string, content []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	PresignedURL(ctx context.Context, name string, expiry time.Duration) (string, error)
	EnsureBucket(ctx context.Context) error
	Ping(ctx context.Context) error
}

type minioStore struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
}

func NewMinioDocumentStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string, timeout time.Duration) (DocumentStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &minioStore{client: client, bucket: bucket, timeout: timeout}, nil
}

func (m *minioStore) Put(ctx context.Context, name string, content []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: pdfContentType,
	})
	if err != nil {
		return common.NewStorageError("Failed to store invoice document", err)
	}
	return nil
}

func (m *minioStore) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, common.NewStorageError("Failed to read invoice document", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, common.NewNotFoundError("Invoice document", name)
		}
		return nil, common.NewStorageError("Failed to read invoice document", err)
	}
	return data, nil
}

func (m *minioStore) PresignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	url, err := m.client.PresignedGetObject(ctx, m.bucket, name, expiry, nil)
	if err != nil {
		return "", common.NewStorageError("Failed to sign invoice download link", err)
	}
	return url.String(), nil
}

func (m *minioStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return common.NewStorageError("Failed to check invoice bucket", err)
	}
	if !found {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return common.NewStorageError("Failed to create invoice bucket", err)
		}
	}
	return nil
}

func (m *minioStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}
