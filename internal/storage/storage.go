// Package storage provides the segment-keyed store the index writes to and
// scans, plus the object storage abstraction one of its backends sits on.
package storage

import (
	"context"
	"errors"
	"strings"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

// Key is an ordered sequence of string segments.
type Key []string

// HasPrefix reports whether prefix is a segment-wise prefix of k.
// Key{"a"} is not a prefix of Key{"ab"}.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String joins the segments with "/" for logs and errors.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// Entry is one key/value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// ScanFunc receives entries during a prefix scan. Returning an error stops the
// scan and the error is returned from ScanPrefix unchanged.
type ScanFunc func(Entry) error

// Store is a flat key/value store with exact lookups and segment-wise prefix
// scans. Implementations are safe for concurrent use.
type Store interface {
	// Put writes all entries. Backends that support transactions apply the
	// whole batch atomically.
	Put(ctx context.Context, entries ...Entry) error

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// ScanPrefix calls fn for every entry whose key starts with prefix, in the
	// backend's native key order.
	ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error

	// Close releases the backend's resources.
	Close() error
}

// ErrKeyNotFound is returned by Get for a missing key. Match with errors.Is.
var ErrKeyNotFound = berrors.New(berrors.ErrCategoryStorage, berrors.CodeKeyNotFound, "key not found")

// Common errors for object storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts blob storage addressed by slash-separated paths.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// PutObject writes data to objectPath, replacing any existing object.
	PutObject(ctx context.Context, objectPath string, data []byte) error

	// GetObject reads the object at objectPath.
	// Returns ErrObjectNotFound if it does not exist.
	GetObject(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths that start with prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func putFailed(err error) error {
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return err
	}
	return berrors.NewStorageError(berrors.CodePutFailed, "put failed", err)
}

func scanFailed(prefix Key, err error) error {
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return err
	}
	return berrors.NewStorageError(berrors.CodeScanFailed, "scan of "+prefix.String()+" failed", err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
