// Package memkv is an ephemeral, in-process implementation of kv.Store:
// a mutex-protected map plus a maintained sorted key slice for range
// scans.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"hyperdelta.dev/engine/kv"
)

type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	keys   []string // sorted
	closed bool
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.putLocked(string(key), value)
	return nil
}

func (s *Store) putLocked(k string, value []byte) {
	if _, exists := s.values[k]; !exists {
		i := sort.SearchStrings(s.keys, k)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = k
	}
	s.values[k] = append([]byte(nil), value...)
}

func (s *Store) deleteLocked(k string) {
	if _, exists := s.values[k]; !exists {
		return
	}
	delete(s.values, k)
	i := sort.SearchStrings(s.keys, k)
	if i < len(s.keys) && s.keys[i] == k {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, kv.ErrClosed
	}
	v, ok := s.values[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.deleteLocked(string(key))
	return nil
}

func (s *Store) Batch(_ context.Context, writes []kv.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	for _, w := range writes {
		if w.Value == nil {
			s.deleteLocked(string(w.Key))
		} else {
			s.putLocked(string(w.Key), w.Value)
		}
	}
	return nil
}

func (s *Store) RangeScan(_ context.Context, prefix []byte) (kv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	start := sort.SearchStrings(s.keys, string(prefix))
	var entries []kv.Entry
	for i := start; i < len(s.keys); i++ {
		k := s.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		entries = append(entries, kv.Entry{
			Key:   []byte(k),
			Value: append([]byte(nil), s.values[k]...),
		})
	}
	return &sliceIterator{entries: entries, pos: -1}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type sliceIterator struct {
	entries []kv.Entry
	pos     int
}

func (it *sliceIterator) Next(_ context.Context) bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *sliceIterator) Entry() kv.Entry { return it.entries[it.pos] }
func (it *sliceIterator) Err() error      { return nil }
func (it *sliceIterator) Close() error    { return nil }
