// Package store composes the KV backend (kv.Store) and the index manager
// (index.Manager) into the append/get/query surface the rest of the
// engine is built on.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/index"
	"hyperdelta.dev/engine/internal/keys"
	"hyperdelta.dev/engine/kv"
)

type Store struct {
	kv             kv.Store
	index          *index.Manager
	enableIndexing bool
}

func New(backend kv.Store, enableIndexing bool) *Store {
	return &Store{kv: backend, index: index.New(backend), enableIndexing: enableIndexing}
}

func (s *Store) Index() *index.Manager { return s.index }

// Append persists d via a single atomic batch of its delta record plus its
// index entries. Re-appending an already-stored delta is a no-op, since
// content addressing makes the write idempotent.
func (s *Store) Append(ctx context.Context, d *delta.Delta) (appended bool, err error) {
	_, exists, err := s.kv.Get(ctx, keys.DeltaKey(d.ID))
	if err != nil {
		return false, fmt.Errorf("store: append: %w", err)
	}
	if exists {
		return false, nil
	}
	writes := []kv.Write{{Key: keys.DeltaKey(d.ID), Value: delta.Encode(d)}}
	if s.enableIndexing {
		writes = append(writes, s.index.Writes(d)...)
	} else {
		writes = append(writes, indexingDisabledWrites(d)...)
	}
	if err := s.kv.Batch(ctx, writes); err != nil {
		return false, fmt.Errorf("store: append: %w", err)
	}
	return true, nil
}

// indexingDisabledWrites maintains only ix:time (always, so time-ordered
// scan keeps working) and ix:neg (negation propagation is not an optional
// accelerator: it changes which deltas are live at all).
func indexingDisabledWrites(d *delta.Delta) []kv.Write {
	ws := []kv.Write{{Key: keys.TimeKey(d.Timestamp, d.ID), Value: []byte{}}}
	if negated, ok := d.Negates(); ok {
		ws = append(ws, kv.Write{Key: keys.NegKey(negated, d.ID), Value: []byte{}})
	}
	return ws
}

// Get fetches deltas by id, preserving request order; missing ids are
// omitted. Each lookup is retried at most once on backend failure;
// Append's writes never go through this retry.
func (s *Store) Get(ctx context.Context, ids []string) ([]*delta.Delta, error) {
	out := make([]*delta.Delta, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := kv.RetryGet(ctx, s.kv, keys.DeltaKey(id))
		if err != nil {
			return nil, fmt.Errorf("store: get %s: %w", id, err)
		}
		if !ok {
			continue
		}
		d, err := delta.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("store: get %s: %w", id, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// QueryDeltas selects the intersection of f's non-empty dimensions,
// excluding non-live deltas unless f.IncludeNegated, ordered ascending by
// (timestamp, id).
func (s *Store) QueryDeltas(ctx context.Context, f Filter) ([]*delta.Delta, error) {
	ids, err := s.candidateIDs(ctx, f)
	if err != nil {
		return nil, err
	}
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	deltas, err := s.Get(ctx, ordered)
	if err != nil {
		return nil, err
	}
	out := deltas[:0]
	for _, d := range deltas {
		if !f.Matches(d) {
			continue
		}
		if !f.IncludeNegated {
			live, err := s.index.IsLive(ctx, d.ID)
			if err != nil {
				return nil, fmt.Errorf("store: query: %w", err)
			}
			if !live {
				continue
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// candidateIDs intersects the index-backed dimensions of f (authors,
// targetIds, timeRange); targetContexts has no dedicated index (the
// keyspace only supports (objectId, context) pairs, not context alone) so
// it is applied later as a Filter.Matches post-filter over whatever
// candidate set the other dimensions produced.
func (s *Store) candidateIDs(ctx context.Context, f Filter) (map[string]struct{}, error) {
	var candidates map[string]struct{}
	hasCandidates := false

	intersect := func(next map[string]struct{}) {
		if !hasCandidates {
			candidates = next
			hasCandidates = true
			return
		}
		for id := range candidates {
			if _, ok := next[id]; !ok {
				delete(candidates, id)
			}
		}
	}

	if len(f.TargetIDs) > 0 {
		union := make(map[string]struct{})
		for _, id := range f.TargetIDs {
			ids, err := s.targetIDs(ctx, id)
			if err != nil {
				return nil, err
			}
			for id := range ids {
				union[id] = struct{}{}
			}
		}
		intersect(union)
	}

	if len(f.Authors) > 0 {
		union := make(map[string]struct{})
		for _, author := range f.Authors {
			ids, err := s.authorIDs(ctx, author)
			if err != nil {
				return nil, err
			}
			for id := range ids {
				union[id] = struct{}{}
			}
		}
		intersect(union)
	}

	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if f.TimeRange != nil {
		if f.TimeRange.From != nil {
			lo = *f.TimeRange.From
		}
		if f.TimeRange.To != nil {
			hi = *f.TimeRange.To
		}
	}
	if f.TimeRange != nil || !hasCandidates {
		entries, err := s.index.ByTimeRange(ctx, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("store: query: %w", err)
		}
		set := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			set[e.DeltaID] = struct{}{}
		}
		intersect(set)
	}

	return candidates, nil
}

func (s *Store) targetIDs(ctx context.Context, objectID string) (map[string]struct{}, error) {
	if s.enableIndexing {
		return s.index.ByTarget(ctx, objectID)
	}
	return s.fullScanMatch(ctx, Filter{TargetIDs: []string{objectID}})
}

func (s *Store) authorIDs(ctx context.Context, author string) (map[string]struct{}, error) {
	if s.enableIndexing {
		return s.index.ByAuthor(ctx, author)
	}
	return s.fullScanMatch(ctx, Filter{Authors: []string{author}})
}

// fullScanMatch enumerates every delta via ix:time (always maintained) and
// keeps the ids matching f, used when enableIndexing is false.
func (s *Store) fullScanMatch(ctx context.Context, f Filter) (map[string]struct{}, error) {
	entries, err := s.index.ByTimeRange(ctx, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.DeltaID)
	}
	deltas, err := s.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, d := range deltas {
		if f.Matches(d) {
			out[d.ID] = struct{}{}
		}
	}
	return out, nil
}
