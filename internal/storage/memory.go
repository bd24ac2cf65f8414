package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultMemoryShards is the shard count used when none is configured.
const DefaultMemoryShards = 16

// shardKeyDepth is how many leading segments pick a shard. Keys under one
// keyspace and name always land in the same shard, so scans for a name's
// time buckets touch a single shard.
const shardKeyDepth = 2

// MemoryStore is an in-memory Store split into independently locked shards.
// Shard selection: murmur3(first two encoded segments) % shardCount.
type MemoryStore struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu     sync.RWMutex
	keys   []string // sorted encoded keys
	values map[string][]byte
}

// NewMemoryStore creates an empty store with the given number of shards.
func NewMemoryStore(shardCount int) *MemoryStore {
	if shardCount <= 0 {
		shardCount = DefaultMemoryShards
	}
	s := &MemoryStore{shards: make([]*memoryShard, shardCount)}
	for i := range s.shards {
		s.shards[i] = &memoryShard{values: make(map[string][]byte)}
	}
	return s
}

// shardFor returns the shard that owns a key, or -1 when the key is too short
// to be owned by a single shard.
func (s *MemoryStore) shardFor(key Key) (int, error) {
	if len(key) < shardKeyDepth {
		return -1, nil
	}
	head, err := EncodeKey(key[:shardKeyDepth])
	if err != nil {
		return 0, err
	}
	return int(murmur3.Sum32(head) % uint32(len(s.shards))), nil
}

// Put applies all entries atomically. Involved shards are locked in ascending
// order so concurrent batches cannot deadlock.
func (s *MemoryStore) Put(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type pending struct {
		shard int
		key   string
		value []byte
	}
	writes := make([]pending, 0, len(entries))
	involved := make(map[int]struct{})
	for _, e := range entries {
		enc, err := EncodeKey(e.Key)
		if err != nil {
			return err
		}
		idx, err := s.shardFor(e.Key)
		if err != nil {
			return err
		}
		if idx < 0 {
			idx = 0
		}
		writes = append(writes, pending{shard: idx, key: string(enc), value: append([]byte(nil), e.Value...)})
		involved[idx] = struct{}{}
	}

	order := make([]int, 0, len(involved))
	for idx := range involved {
		order = append(order, idx)
	}
	sort.Ints(order)
	for _, idx := range order {
		s.shards[idx].mu.Lock()
	}
	defer func() {
		for _, idx := range order {
			s.shards[idx].mu.Unlock()
		}
	}()

	for _, w := range writes {
		s.shards[w.shard].set(w.key, w.value)
	}
	return nil
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	idx, err := s.shardFor(key)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		idx = 0
	}

	sh := s.shards[idx]
	sh.mu.RLock()
	v, ok := sh.values[string(enc)]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// ScanPrefix visits matching entries in encoded key order. Prefixes shorter
// than the shard depth span every shard; their results are merged.
func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error {
	enc, err := EncodeKey(prefix)
	if err != nil {
		return err
	}
	idx, err := s.shardFor(prefix)
	if err != nil {
		return err
	}

	var shards []*memoryShard
	if idx >= 0 {
		shards = []*memoryShard{s.shards[idx]}
	} else {
		shards = s.shards
	}

	type kv struct {
		key   string
		value []byte
	}
	var matches []kv
	for _, sh := range shards {
		sh.mu.RLock()
		for _, k := range sh.rangeOf(string(enc)) {
			matches = append(matches, kv{key: k, value: sh.values[k]})
		}
		sh.mu.RUnlock()
	}
	if len(shards) > 1 {
		sort.Slice(matches, func(i, j int) bool { return matches[i].key < matches[j].key })
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := DecodeKey([]byte(m.key))
		if err != nil {
			return scanFailed(prefix, err)
		}
		if err := fn(Entry{Key: key, Value: append([]byte(nil), m.value...)}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.keys)
		sh.mu.RUnlock()
	}
	return n
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// set stores value under key. Callers hold the write lock.
func (sh *memoryShard) set(key string, value []byte) {
	if _, exists := sh.values[key]; !exists {
		i := sort.SearchStrings(sh.keys, key)
		sh.keys = append(sh.keys, "")
		copy(sh.keys[i+1:], sh.keys[i:])
		sh.keys[i] = key
	}
	sh.values[key] = value
}

// rangeOf returns the sorted keys starting with prefix. Callers hold a read lock.
func (sh *memoryShard) rangeOf(prefix string) []string {
	lo := sort.SearchStrings(sh.keys, prefix)
	hi := len(sh.keys)
	if end := PrefixEnd([]byte(prefix)); end != nil {
		hi = sort.SearchStrings(sh.keys, string(end))
	}
	if hi < lo {
		hi = lo
	}
	return sh.keys[lo:hi]
}
