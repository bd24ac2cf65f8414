package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisScanPage = 512

// RedisStore keeps encoded keys as members of one sorted set (all scores 0,
// so members sort lexicographically by bytes) and values in one hash.
// Prefix scans are ZRANGEBYLEX pages over [prefix, PrefixEnd(prefix)).
type RedisStore struct {
	rdb *redis.Client

	prefix    string
	keysKey   string
	valuesKey string
	pageSize  int64
	owned     bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the namespace for the set and hash names.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithRedisPageSize sets how many members one ZRANGEBYLEX call returns.
func WithRedisPageSize(n int64) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// withOwnedClient makes Close also close the client.
func withOwnedClient() RedisOption {
	return func(s *RedisStore) { s.owned = true }
}

// NewRedisStore wraps an existing client. The caller keeps ownership of rdb.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:      rdb,
		prefix:   "beaverlog",
		pageSize: redisScanPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.keysKey = s.prefix + ":keys"
	s.valuesKey = s.prefix + ":values"
	return s
}

// Put writes all entries in one MULTI/EXEC transaction.
func (s *RedisStore) Put(ctx context.Context, entries ...Entry) error {
	members := make([]redis.Z, len(entries))
	values := make([]interface{}, 0, 2*len(entries))
	for i, e := range entries {
		enc, err := EncodeKey(e.Key)
		if err != nil {
			return err
		}
		members[i] = redis.Z{Score: 0, Member: string(enc)}
		values = append(values, string(enc), e.Value)
	}
	if len(entries) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.valuesKey, values...)
		pipe.ZAdd(ctx, s.keysKey, members...)
		return nil
	})
	return putFailed(err)
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	enc, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	value, err := s.rdb.HGet(ctx, s.valuesKey, string(enc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// ScanPrefix pages through the key range, fetching each page's values with
// HMGET. Pages resume after the last member seen, so concurrent inserts do
// not shift the window.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error {
	enc, err := EncodeKey(prefix)
	if err != nil {
		return err
	}

	lo := "-"
	if len(enc) > 0 {
		lo = "[" + string(enc)
	}
	hi := "+"
	if end := PrefixEnd(enc); end != nil {
		hi = "(" + string(end)
	}

	for {
		members, err := s.rdb.ZRangeByLex(ctx, s.keysKey, &redis.ZRangeBy{
			Min:   lo,
			Max:   hi,
			Count: s.pageSize,
		}).Result()
		if err != nil {
			return scanFailed(prefix, err)
		}
		if len(members) == 0 {
			return nil
		}

		values, err := s.rdb.HMGet(ctx, s.valuesKey, members...).Result()
		if err != nil {
			return scanFailed(prefix, err)
		}

		for i, m := range members {
			raw, ok := values[i].(string)
			if !ok {
				// Listed but value not visible: the key is mid-write elsewhere.
				continue
			}
			key, err := DecodeKey([]byte(m))
			if err != nil {
				return scanFailed(prefix, err)
			}
			if err := fn(Entry{Key: key, Value: []byte(raw)}); err != nil {
				return err
			}
		}

		if int64(len(members)) < s.pageSize {
			return nil
		}
		lo = "(" + members[len(members)-1]
	}
}

// Close closes the client when the store created it.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}
