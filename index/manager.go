// Package index maintains the inverted indexes over appended deltas: by
// target object, by target+context, by author, by timestamp, and the
// negator graph used to compute live-delta parity.
package index

import (
	"context"
	"fmt"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/internal/keys"
	"hyperdelta.dev/engine/kv"
)

type Manager struct {
	store kv.Store
}

func New(store kv.Store) *Manager {
	return &Manager{store: store}
}

// Writes returns the kv.Write set indexing d requires, so the delta store
// can include them in the same atomic batch as the delta record itself.
func (m *Manager) Writes(d *delta.Delta) []kv.Write {
	var ws []kv.Write
	for _, p := range d.Pointers {
		if !p.Target.IsObject() {
			continue
		}
		ws = append(ws, kv.Write{Key: keys.TargetKey(p.Target.ObjectID, d.ID), Value: []byte{}})
		if p.Target.HasContext {
			ws = append(ws, kv.Write{Key: keys.CtxKey(p.Target.ObjectID, p.Target.ObjectContext, d.ID), Value: []byte{}})
		}
	}
	ws = append(ws, kv.Write{Key: keys.AuthorKey(d.Author, d.ID), Value: []byte{}})
	ws = append(ws, kv.Write{Key: keys.TimeKey(d.Timestamp, d.ID), Value: []byte{}})
	if negated, ok := d.Negates(); ok {
		ws = append(ws, kv.Write{Key: keys.NegKey(negated, d.ID), Value: []byte{}})
	}
	return ws
}

// DeindexWrites returns the reverse of Writes, for compaction tooling only;
// it is never invoked during normal append operation.
func (m *Manager) DeindexWrites(d *delta.Delta) []kv.Write {
	var ws []kv.Write
	for _, p := range d.Pointers {
		if !p.Target.IsObject() {
			continue
		}
		ws = append(ws, kv.Write{Key: keys.TargetKey(p.Target.ObjectID, d.ID), Value: nil})
		if p.Target.HasContext {
			ws = append(ws, kv.Write{Key: keys.CtxKey(p.Target.ObjectID, p.Target.ObjectContext, d.ID), Value: nil})
		}
	}
	ws = append(ws, kv.Write{Key: keys.AuthorKey(d.Author, d.ID), Value: nil})
	ws = append(ws, kv.Write{Key: keys.TimeKey(d.Timestamp, d.ID), Value: nil})
	if negated, ok := d.Negates(); ok {
		ws = append(ws, kv.Write{Key: keys.NegKey(negated, d.ID), Value: nil})
	}
	return ws
}

// scanIDs retries the scan at most once on backend failure; every index
// query (ByTarget, ByTargetContext, ByAuthor, NegatorsOf) goes through
// it.
func (m *Manager) scanIDs(ctx context.Context, prefix []byte) (map[string]struct{}, error) {
	it, err := kv.RetryRangeScan(ctx, m.store, prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make(map[string]struct{})
	for it.Next(ctx) {
		id := keys.StripPrefix(it.Entry().Key, prefix)
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out, it.Err()
}

func (m *Manager) ByTarget(ctx context.Context, objectID string) (map[string]struct{}, error) {
	return m.scanIDs(ctx, keys.TargetPrefix(objectID))
}

func (m *Manager) ByTargetContext(ctx context.Context, objectID, context_ string) (map[string]struct{}, error) {
	return m.scanIDs(ctx, keys.CtxPrefix(objectID, context_))
}

func (m *Manager) ByAuthor(ctx context.Context, author string) (map[string]struct{}, error) {
	return m.scanIDs(ctx, keys.AuthorPrefix(author))
}

// TimeEntry is one (timestamp, deltaId) pair from a time-ordered scan.
type TimeEntry struct {
	Timestamp int64
	DeltaID   string
}

// ByTimeRange returns deltas with lo <= timestamp <= hi, ascending, with
// lexicographic-id tie-breaking within equal timestamps (guaranteed by the
// key layout: timestamp segment sorts first, delta id second).
func (m *Manager) ByTimeRange(ctx context.Context, lo, hi int64) ([]TimeEntry, error) {
	it, err := kv.RetryRangeScan(ctx, m.store, keys.TimePrefix())
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []TimeEntry
	for it.Next(ctx) {
		ts, id, ok := keys.DecodeTimeKey(it.Entry().Key)
		if !ok {
			continue
		}
		if ts < lo || ts > hi {
			continue
		}
		out = append(out, TimeEntry{Timestamp: ts, DeltaID: id})
	}
	return out, it.Err()
}

func (m *Manager) NegatorsOf(ctx context.Context, deltaID string) (map[string]struct{}, error) {
	return m.scanIDs(ctx, keys.NegPrefix(deltaID))
}

// IsLive reports whether deltaID is live: the count of its live negators
// is even. The recursion is memoized per call in memo to avoid
// recomputation across shared negator chains; it always terminates because
// content addressing makes the negator graph a DAG (a negator's target id
// must already exist, and so be fixed, before the negator itself is
// created).
func (m *Manager) IsLive(ctx context.Context, deltaID string) (bool, error) {
	return m.isLive(ctx, deltaID, make(map[string]bool))
}

func (m *Manager) isLive(ctx context.Context, deltaID string, memo map[string]bool) (bool, error) {
	if v, ok := memo[deltaID]; ok {
		return v, nil
	}
	negators, err := m.NegatorsOf(ctx, deltaID)
	if err != nil {
		return false, fmt.Errorf("index: negators of %s: %w", deltaID, err)
	}
	liveNegators := 0
	for negatorID := range negators {
		live, err := m.isLive(ctx, negatorID, memo)
		if err != nil {
			return false, err
		}
		if live {
			liveNegators++
		}
	}
	live := liveNegators%2 == 0
	memo[deltaID] = live
	return live, nil
}

// IsLiveAt is the time-travel variant of IsLive: it counts only negators
// with timestamp <= at.
func (m *Manager) IsLiveAt(ctx context.Context, deltaID string, at int64) (bool, error) {
	return m.isLiveAt(ctx, deltaID, at, make(map[string]bool))
}

func (m *Manager) isLiveAt(ctx context.Context, deltaID string, at int64, memo map[string]bool) (bool, error) {
	if v, ok := memo[deltaID]; ok {
		return v, nil
	}
	negators, err := m.NegatorsOf(ctx, deltaID)
	if err != nil {
		return false, fmt.Errorf("index: negators of %s: %w", deltaID, err)
	}
	liveNegators := 0
	for negatorID := range negators {
		ts, ok, err := m.deltaTimestamp(ctx, negatorID)
		if err != nil {
			return false, err
		}
		if !ok || ts > at {
			continue
		}
		live, err := m.isLiveAt(ctx, negatorID, at, memo)
		if err != nil {
			return false, err
		}
		if live {
			liveNegators++
		}
	}
	live := liveNegators%2 == 0
	memo[deltaID] = live
	return live, nil
}

func (m *Manager) deltaTimestamp(ctx context.Context, deltaID string) (int64, bool, error) {
	raw, ok, err := kv.RetryGet(ctx, m.store, keys.DeltaKey(deltaID))
	if err != nil || !ok {
		return 0, ok, err
	}
	d, err := delta.Decode(raw)
	if err != nil {
		return 0, false, fmt.Errorf("index: decode %s: %w", deltaID, err)
	}
	return d.Timestamp, true, nil
}
