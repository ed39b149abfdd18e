package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to blob storage. Used by the signal archiver for
// compliance exports.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
