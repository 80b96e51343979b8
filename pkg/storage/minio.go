// Package storage provides access to the MinIO store holding the source
// documents and questionnaires. The service only reads from it; uploads are
// an external collaborator's concern.
package storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"questionnaire-agent-go/internal/config"
	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/pkg/log"
)

// Client wraps the MinIO client with the bucket it operates on.
type Client struct {
	minioClient *minio.Client
	bucketName  string
}

// NewClient initializes the MinIO client and ensures the bucket exists.
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Infof("bucket '%s' does not exist, creating it", cfg.BucketName)
		if err := minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	log.Info("MinIO client initialized successfully")
	return &Client{minioClient: minioClient, bucketName: cfg.BucketName}, nil
}

// FetchObject returns a reader over the object at the given path.
func (c *Client) FetchObject(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	return c.minioClient.GetObject(ctx, c.bucketName, objectPath, minio.GetObjectOptions{})
}

// ListFiles lists every object in the bucket, the candidates for indexing.
func (c *Client) ListFiles(ctx context.Context) ([]model.SourceFile, error) {
	files := make([]model.SourceFile, 0)
	for object := range c.minioClient.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, object.Err
		}
		files = append(files, model.SourceFile{
			Name: object.Key,
			Path: object.Key,
			Size: object.Size,
		})
	}
	return files, nil
}

// Ping reports whether the object store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.minioClient.BucketExists(ctx, c.bucketName)
	return err
}
