package storage

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchFetcher reads many objects from object storage in parallel.
type BatchFetcher struct {
	storage     ObjectStorage
	concurrency int
}

// NewBatchFetcher creates a new batch fetcher.
// concurrency bounds the number of in-flight reads (minimum 1).
func NewBatchFetcher(storage ObjectStorage, concurrency int) *BatchFetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchFetcher{storage: storage, concurrency: concurrency}
}

// Fetch reads every path and returns the contents in the same order.
// Objects that disappeared after listing come back as nil. Any other failure
// fails the whole batch and no contents are returned.
func (b *BatchFetcher) Fetch(ctx context.Context, paths []string) ([][]byte, error) {
	results := make([][]byte, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, p := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		go func(i int, path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := b.storage.GetObject(ctx, path)
			if errors.Is(err, ErrObjectNotFound) {
				return
			}
			if err != nil {
				fail(err)
				return
			}
			results[i] = data
		}(i, p)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
