package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore is a Store on an embedded badger database. An empty path opens
// an in-memory database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	if path != "" {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := badger.Open(badger.
		DefaultOptions(path).
		WithInMemory(path == "").
		WithCompactL0OnClose(true).
		WithLogger(&badgerLogger{lg: logger.Sugar().Named("badger")}))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put writes all entries in one transaction.
func (b *BadgerStore) Put(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make([][]byte, len(entries))
	for i, e := range entries {
		enc, err := EncodeKey(e.Key)
		if err != nil {
			return err
		}
		keys[i] = enc
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for i, e := range entries {
			if err := txn.Set(keys[i], e.Value); err != nil {
				return err
			}
		}
		return nil
	})
	return putFailed(err)
}

// Get returns the value stored under key.
func (b *BadgerStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(enc)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

// ScanPrefix iterates the prefix inside one read transaction.
func (b *BadgerStore) ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error {
	enc, err := EncodeKey(prefix)
	if err != nil {
		return err
	}

	var fnErr error
	err = b.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Prefix = enc
		it := txn.NewIterator(o)
		defer it.Close()

		for it.Seek(enc); it.ValidForPrefix(enc); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key, err := DecodeKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(Entry{Key: key, Value: value}); err != nil {
				fnErr = err
				return err
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return scanFailed(prefix, err)
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ badger.Logger = (*badgerLogger)(nil)

// badgerLogger routes badger's printf-style logging into zap. Info and debug
// output is chatty, so it is logged one level down.
type badgerLogger struct {
	lg *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.lg.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.lg.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.lg.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.lg.Debugf(format, args...)
}
