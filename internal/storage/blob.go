// Package storage provides blob persistence and the per-user manifest used by
// the form-fill pipeline: uploaded documents, their extraction results and the
// source/schema/filled artifacts of each form.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// BlobStore is the minimal object storage contract the pipeline depends on.
// Keys are opaque strings; writes are last-write-wins.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
