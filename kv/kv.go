// Package kv defines the minimal ordered byte store the engine treats the
// durable backend as. Keys are UTF-8 byte strings namespaced with the
// reserved "|" separator; values are opaque bytes.
package kv

import "context"

// Entry is a single (key, value) pair returned from a range scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Write is one operation inside an atomic Batch: a Put when Value is
// non-nil, a Delete when Value is nil.
type Write struct {
	Key   []byte
	Value []byte // nil means delete
}

// Iterator walks entries in lexicographic key order.
type Iterator interface {
	// Next advances the iterator and reports whether an entry is
	// available; it returns false at end of range or on error (call Err
	// to distinguish the two).
	Next(ctx context.Context) bool
	Entry() Entry
	Err() error
	Close() error
}

// Store is the ordered byte store the engine's delta store and index
// manager are built on. Implementations: internal/kv/memkv (ephemeral) and
// internal/kv/boltkv (persistent, backed by bbolt).
type Store interface {
	// Put is an idempotent write.
	Put(ctx context.Context, key, value []byte) error
	// Get returns (nil, false, nil) when key is absent.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Delete is used only by index-maintenance tooling, never by the
	// delta store itself.
	Delete(ctx context.Context, key []byte) error
	// RangeScan iterates all keys with the given prefix in lexicographic
	// order. The caller must Close the returned iterator.
	RangeScan(ctx context.Context, prefix []byte) (Iterator, error)
	// Batch applies writes atomically: either all are visible or none
	// are.
	Batch(ctx context.Context, writes []Write) error
	Close() error
}
