// Package boltkv adapts go.etcd.io/bbolt into kv.Store: a single bucket
// whose keys already carry the "|"-delimited namespace prefix of the
// engine's keyspace layout. bbolt iterates a bucket in byte order, so a
// prefix scan is a Cursor.Seek plus a prefix check.
package boltkv

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"hyperdelta.dev/engine/kv"
)

var rootBucket = []byte("hyperdelta")

type Store struct {
	db *bolt.DB
}

// Open creates (or reuses) the single bbolt bucket at path/kv.db.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltkv: open: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("boltkv: create bucket: %w", err)
	}
	return &Store{db: bdb}, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put(key, value)
	})
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltkv: get: %w", err)
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(key)
	})
}

func (s *Store) Batch(_ context.Context, writes []kv.Write) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket)
		for _, w := range writes {
			if w.Value == nil {
				if err := b.Delete(w.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RangeScan(_ context.Context, prefix []byte) (kv.Iterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("boltkv: range scan: %w", err)
	}
	return &cursorIterator{tx: tx, c: tx.Bucket(rootBucket).Cursor(), prefix: prefix, first: true}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type cursorIterator struct {
	tx     *bolt.Tx
	c      *bolt.Cursor
	prefix []byte
	first  bool
	k, v   []byte
	done   bool
}

func (it *cursorIterator) Next(_ context.Context) bool {
	if it.done {
		return false
	}
	var k, v []byte
	if it.first {
		k, v = it.c.Seek(it.prefix)
		it.first = false
	} else {
		k, v = it.c.Next()
	}
	if k == nil || !hasPrefix(k, it.prefix) {
		it.done = true
		return false
	}
	it.k = append([]byte(nil), k...)
	it.v = append([]byte(nil), v...)
	return true
}

func (it *cursorIterator) Entry() kv.Entry { return kv.Entry{Key: it.k, Value: it.v} }
func (it *cursorIterator) Err() error      { return nil }
func (it *cursorIterator) Close() error    { return it.tx.Rollback() }

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
