// Package badgerstore is the default durable Storage engine, backed by BadgerDB.
package badgerstore

import (
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
)

// Value encodings. Every stored value carries a one-byte header so a store
// can be reopened with a different Compress setting.
const (
	encodingRaw    byte = 0
	encodingSnappy byte = 1
)

// Options configures the store.
type Options struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in memory; used by tests and ephemeral sessions.
	InMemory bool
	// Compress stores values snappy-compressed.
	Compress bool
	// SyncWrites fsyncs every write before it returns.
	SyncWrites bool
}

// Store implements blogsync.Storage.
type Store struct {
	db       *badger.DB
	compress bool
}

// Open opens (or creates) a store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("badgerstore: dir is required")
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("badgerstore: create dir: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, compress: opts.Compress}, nil
}

func (s *Store) encode(value []byte) []byte {
	if s.compress {
		return append([]byte{encodingSnappy}, snappy.Encode(nil, value)...)
	}
	return append([]byte{encodingRaw}, value...)
}

func decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("badgerstore: empty value")
	}
	switch stored[0] {
	case encodingRaw:
		return append([]byte(nil), stored[1:]...), nil
	case encodingSnappy:
		return snappy.Decode(nil, stored[1:])
	}
	return nil, fmt.Errorf("badgerstore: unknown value encoding %d", stored[0])
}

func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), s.encode(value))
	})
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			value, decErr = decode(val)
			return decErr
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

// Keys returns the keys with prefix in lexical order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Sync flushes pending writes to disk.
func (s *Store) Sync() error {
	return s.db.Sync()
}

func (s *Store) Close() error {
	return s.db.Close()
}
