// Package blob defines the audio content store that memo audio refs resolve
// against.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Driver identifies a blob store backend.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blob already exists")
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key/value store for immutable audio content.
// Keys are create-only: Put fails with ErrExists for a taken key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// NotFound wraps ErrNotFound with the missing key.
func NotFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Exists wraps ErrExists with the taken key.
func Exists(key string) error {
	return fmt.Errorf("%w: %s", ErrExists, key)
}

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
