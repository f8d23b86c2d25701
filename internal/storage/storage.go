// Package storage stages uploaded import files until a background job has
// consumed them.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("staged object not found")

type ObjectInfo struct {
	Key  string
	Size int64
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
}
