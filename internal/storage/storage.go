package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// PutOptions describes where a snapshot goes and how it is labelled.
type PutOptions struct {
	Bucket      string
	Key         string
	ContentType string
	// Metadata is stored as user-defined object metadata.
	Metadata map[string]string
}

// Service stores list snapshots in remote object storage.
type Service interface {
	PutObject(ctx context.Context, body []byte, opts PutOptions) (string, error)
	// ListObjects returns every object under prefix, following pagination.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	// GetObjectURL returns a presigned download URL valid for expires.
	GetObjectURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}
