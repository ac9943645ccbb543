package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/captionforge/captionforge/internal/config"
)

// Publisher uploads finished renders to object storage and produces
// shareable links
type Publisher struct {
	client     *minio.Client
	bucketName string
	linkExpiry time.Duration
}

// New creates a publisher and ensures the target bucket exists
func New(cfg config.StorageConfig) (*Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &Publisher{
		client:     client,
		bucketName: cfg.BucketName,
		linkExpiry: expiry,
	}, nil
}

// Publish uploads a rendered file and returns a presigned share link
func (p *Publisher) Publish(ctx context.Context, objectName, filePath string) (string, error) {
	_, err := p.client.FPutObject(ctx, p.bucketName, objectName, filePath, minio.PutObjectOptions{
		ContentType: getContentType(filePath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload render: %w", err)
	}

	url, err := p.client.PresignedGetObject(ctx, p.bucketName, objectName, p.linkExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate share link: %w", err)
	}

	return url.String(), nil
}

// Delete removes a published render
func (p *Publisher) Delete(ctx context.Context, objectName string) error {
	if err := p.client.RemoveObject(ctx, p.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List lists published renders with a prefix
func (p *Publisher) List(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	for object := range p.client.ListObjects(ctx, p.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, object.Key)
	}
	return objects, nil
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
