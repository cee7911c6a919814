// Package objectstore defines the storage abstraction snapshots are written to
// and read from. The S3 implementation lives in the s3 subpackage; MockStore is
// an in-memory implementation for tests.
//
// Large archives go through [MultipartStore]:
//
//	upload, err := store.CreateMultipartUpload(ctx, key, contentType, opts)
//	if err != nil {
//	    return err
//	}
//	etag, err := upload.UploadPart(ctx, 1, part, size)
//	if err != nil {
//	    upload.Abort(ctx)
//	    return err
//	}
//	return upload.Complete(ctx, []string{etag})
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors returned by Store implementations.
var (
	ErrNotFound       = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrAccessDenied   = errors.New("access denied")
	ErrClosed         = errors.New("store is closed")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Put, Get, Head, Delete, List, UploadPart, ...
	Key string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// ObjectMeta contains metadata about an object.
type ObjectMeta struct {
	Key  string
	Size int64
	ETag string
	// LastModified is a Unix timestamp in milliseconds.
	LastModified int64
}

// PutOptions configures uploads.
type PutOptions struct {
	// ServerSideEncryption requests encryption at rest, e.g. "AES256".
	// Empty leaves the bucket default.
	ServerSideEncryption string
	Metadata             map[string]string
}

// Store is the interface for object storage operations. Implementations must
// be safe for concurrent use.
type Store interface {
	// Put stores size bytes read from r at key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, opts PutOptions) error

	// Get retrieves an object. The caller closes the returned reader.
	// A missing object yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Delete removes an object. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error

	// List returns every object under prefix in lexicographic key order.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	Close() error
}

// MultipartUpload is an in-progress multipart upload. Either Complete or
// Abort must be called.
type MultipartUpload interface {
	UploadID() string

	// UploadPart uploads part partNum (1-based) and returns its ETag.
	UploadPart(ctx context.Context, partNum int, r io.Reader, size int64) (string, error)

	// Complete finalizes the upload; etags are given in part order.
	Complete(ctx context.Context, etags []string) error

	// Abort discards uploaded parts. Aborting twice succeeds.
	Abort(ctx context.Context) error
}

// MultipartStore extends Store with multipart uploads.
type MultipartStore interface {
	Store
	CreateMultipartUpload(ctx context.Context, key, contentType string, opts PutOptions) (MultipartUpload, error)
}
