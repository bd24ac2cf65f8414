package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

const (
	objectSuffix   = ".obj"
	emptySegment   = "~"
	fetchChunkSize = 256
)

// ObjectStore is a Store with one object per key on ObjectStorage.
// A key maps to "seg/seg/.../last.obj" with every segment path-escaped, and
// "." and "~" escaped as well so "." and ".." never appear as path elements.
//
// Object storage has no multi-object transactions: Put writes entries one by
// one in the given order, and a failed Put may leave a prefix of the batch
// written.
type ObjectStore struct {
	objects ObjectStorage
	fetcher *BatchFetcher
}

// NewObjectStore creates a Store over the given object storage.
// fetchConcurrency bounds parallel object reads during scans.
func NewObjectStore(objects ObjectStorage, fetchConcurrency int) *ObjectStore {
	return &ObjectStore{
		objects: objects,
		fetcher: NewBatchFetcher(objects, fetchConcurrency),
	}
}

// Put writes each entry as its own object, in order.
func (o *ObjectStore) Put(ctx context.Context, entries ...Entry) error {
	for _, e := range entries {
		if len(e.Key) == 0 {
			return berrors.NewValidationError(berrors.CodeInvalidKeySegment, "object keys need at least one segment")
		}
		if _, err := EncodeKey(e.Key); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := o.objects.PutObject(ctx, ObjectPath(e.Key), e.Value); err != nil {
			return putFailed(err)
		}
	}
	return nil
}

// Get returns the value stored under key.
func (o *ObjectStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if _, err := EncodeKey(key); err != nil {
		return nil, err
	}
	data, err := o.objects.GetObject(ctx, ObjectPath(key))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("object get %s: %w", key, err)
	}
	return data, nil
}

// ScanPrefix lists the prefix's objects, orders them by encoded key so the
// order matches the other backends, and reads them in parallel chunks.
func (o *ObjectStore) ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error {
	if _, err := EncodeKey(prefix); err != nil {
		return err
	}

	var paths []string
	if len(prefix) == 0 {
		all, err := o.objects.ListObjects(ctx, "")
		if err != nil {
			return scanFailed(prefix, err)
		}
		paths = all
	} else {
		exact := ObjectPath(prefix)
		ok, err := o.objects.Exists(ctx, exact)
		if err != nil {
			return scanFailed(prefix, err)
		}
		if ok {
			paths = append(paths, exact)
		}
		children, err := o.objects.ListObjects(ctx, prefixPath(prefix)+"/")
		if err != nil {
			return scanFailed(prefix, err)
		}
		paths = append(paths, children...)
	}

	type located struct {
		key  Key
		enc  []byte
		path string
	}
	found := make([]located, 0, len(paths))
	for _, p := range paths {
		key, err := ParseObjectPath(p)
		if err != nil {
			// Not written by this store.
			continue
		}
		enc, err := EncodeKey(key)
		if err != nil {
			continue
		}
		found = append(found, located{key: key, enc: enc, path: p})
	}
	sort.Slice(found, func(i, j int) bool { return bytes.Compare(found[i].enc, found[j].enc) < 0 })

	for start := 0; start < len(found); start += fetchChunkSize {
		end := start + fetchChunkSize
		if end > len(found) {
			end = len(found)
		}
		chunk := found[start:end]

		chunkPaths := make([]string, len(chunk))
		for i, f := range chunk {
			chunkPaths[i] = f.path
		}
		values, err := o.fetcher.Fetch(ctx, chunkPaths)
		if err != nil {
			return scanFailed(prefix, err)
		}
		for i, f := range chunk {
			if values[i] == nil {
				continue
			}
			if err := fn(Entry{Key: f.key, Value: values[i]}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close is a no-op; object storage clients hold no per-store resources.
func (o *ObjectStore) Close() error {
	return nil
}

// ObjectPath returns the object path for a key.
func ObjectPath(key Key) string {
	return prefixPath(key) + objectSuffix
}

// ParseObjectPath reverses ObjectPath.
func ParseObjectPath(p string) (Key, error) {
	if !strings.HasSuffix(p, objectSuffix) {
		return nil, fmt.Errorf("object path %q lacks %s suffix", p, objectSuffix)
	}
	parts := strings.Split(strings.TrimSuffix(p, objectSuffix), "/")
	key := make(Key, len(parts))
	for i, part := range parts {
		if part == emptySegment {
			continue
		}
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("object path %q: %w", p, err)
		}
		key[i] = seg
	}
	return key, nil
}

func prefixPath(prefix Key) string {
	parts := make([]string, len(prefix))
	for i, s := range prefix {
		parts[i] = escapeSegment(s)
	}
	return strings.Join(parts, "/")
}

func escapeSegment(s string) string {
	if s == "" {
		return emptySegment
	}
	escaped := url.PathEscape(s)
	escaped = strings.ReplaceAll(escaped, ".", "%2E")
	return strings.ReplaceAll(escaped, "~", "%7E")
}
