package index

import (
	"context"
	"errors"
	"testing"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/internal/kv/memkv"
	"hyperdelta.dev/engine/kv"
)

// flakyScanStore wraps a real kv.Store and fails the first N calls to
// RangeScan with a transient error before delegating, to exercise the
// single-retry read path.
type flakyScanStore struct {
	kv.Store
	failuresLeft int
}

var errTransientScan = errors.New("flakyScanStore: transient failure")

func (s *flakyScanStore) RangeScan(ctx context.Context, prefix []byte) (kv.Iterator, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, errTransientScan
	}
	return s.Store.RangeScan(ctx, prefix)
}

func mustAppend(t *testing.T, ctx context.Context, kvStore *memkv.Store, m *Manager, d *delta.Delta) {
	t.Helper()
	if err := kvStore.Put(ctx, []byte("d|"+d.ID), delta.Encode(d)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kvStore.Batch(ctx, m.Writes(d)); err != nil {
		t.Fatalf("batch: %v", err)
	}
}

func TestIndexCompleteness(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	m := New(kvStore)

	d, err := delta.New("alice", "sys", 100, []delta.Pointer{
		{Role: "named", Target: delta.NewObjectTarget("p1", "name")},
		{Role: "name", Target: delta.NewStringTarget("Alice")},
	})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, m, d)

	targets, err := m.ByTarget(ctx, "p1")
	if err != nil {
		t.Fatalf("ByTarget: %v", err)
	}
	if _, ok := targets[d.ID]; !ok {
		t.Fatalf("ByTarget(p1) missing %s", d.ID)
	}

	withCtx, err := m.ByTargetContext(ctx, "p1", "name")
	if err != nil {
		t.Fatalf("ByTargetContext: %v", err)
	}
	if _, ok := withCtx[d.ID]; !ok {
		t.Fatalf("ByTargetContext(p1,name) missing %s", d.ID)
	}

	byAuthor, err := m.ByAuthor(ctx, "alice")
	if err != nil {
		t.Fatalf("ByAuthor: %v", err)
	}
	if _, ok := byAuthor[d.ID]; !ok {
		t.Fatalf("ByAuthor(alice) missing %s", d.ID)
	}
}

func TestByTimeRangeOrdering(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	m := New(kvStore)

	var ids []string
	for i, ts := range []int64{300, 100, 200} {
		d, err := delta.New("a", "sys", ts, []delta.Pointer{{Role: "r", Target: delta.NewIntegerTarget(int64(i))}})
		if err != nil {
			t.Fatalf("delta.New: %v", err)
		}
		mustAppend(t, ctx, kvStore, m, d)
		ids = append(ids, d.ID)
	}

	entries, err := m.ByTimeRange(ctx, -1<<62, 1<<62)
	if err != nil {
		t.Fatalf("ByTimeRange: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries)=%d want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Timestamp > entries[i].Timestamp {
			t.Fatalf("entries not ascending: %+v", entries)
		}
	}
}

func TestNegationParity(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	m := New(kvStore)

	base, err := delta.New("a", "sys", 100, []delta.Pointer{{Role: "r", Target: delta.NewStringTarget("v")}})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, m, base)

	live, err := m.IsLive(ctx, base.ID)
	if err != nil || !live {
		t.Fatalf("expected base delta live before negation, live=%v err=%v", live, err)
	}

	neg1, err := delta.New("a", "sys", 200, []delta.Pointer{{Role: delta.RoleNegates, Target: delta.NewObjectTarget(base.ID, "")}})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, m, neg1)

	live, err = m.IsLive(ctx, base.ID)
	if err != nil || live {
		t.Fatalf("expected base delta dead after one live negator, live=%v err=%v", live, err)
	}

	neg2, err := delta.New("a", "sys", 300, []delta.Pointer{{Role: delta.RoleNegates, Target: delta.NewObjectTarget(neg1.ID, "")}})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, m, neg2)

	live, err = m.IsLive(ctx, base.ID)
	if err != nil || !live {
		t.Fatalf("expected base delta live again after negating the negation, live=%v err=%v", live, err)
	}
}

// TestNegationParityChainDepth5 builds a negator chain five levels deep
// (each delta negating the previous) and checks liveness alternates by
// parity at every prefix of the chain.
func TestNegationParityChainDepth5(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	m := New(kvStore)

	base, err := delta.New("a", "sys", 100, []delta.Pointer{{Role: "r", Target: delta.NewStringTarget("v")}})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, m, base)

	prev := base
	for depth := 1; depth <= 5; depth++ {
		neg, err := delta.New("a", "sys", int64(100+depth), []delta.Pointer{
			{Role: delta.RoleNegates, Target: delta.NewObjectTarget(prev.ID, "")},
		})
		if err != nil {
			t.Fatalf("delta.New depth %d: %v", depth, err)
		}
		mustAppend(t, ctx, kvStore, m, neg)

		live, err := m.IsLive(ctx, base.ID)
		if err != nil {
			t.Fatalf("IsLive depth %d: %v", depth, err)
		}
		// In a pure chain, the base is dead after an odd number of
		// negation levels and alive again after an even number.
		wantLive := depth%2 == 0
		if live != wantLive {
			t.Fatalf("depth %d: live=%v want %v", depth, live, wantLive)
		}
		prev = neg
	}
}

func TestByTargetRetriesOnceOnTransientScanFailure(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	seed := New(kvStore)

	d, err := delta.New("alice", "sys", 100, []delta.Pointer{{Role: "named", Target: delta.NewObjectTarget("p1", "name")}})
	if err != nil {
		t.Fatalf("delta.New: %v", err)
	}
	mustAppend(t, ctx, kvStore, seed, d)

	flaky := &flakyScanStore{Store: kvStore, failuresLeft: 1}
	m := New(flaky)

	targets, err := m.ByTarget(ctx, "p1")
	if err != nil {
		t.Fatalf("ByTarget: %v", err)
	}
	if _, ok := targets[d.ID]; !ok {
		t.Fatalf("ByTarget(p1) missing %s after one transient scan failure", d.ID)
	}

	flaky.failuresLeft = 2
	if _, err := m.ByTarget(ctx, "p1"); !errors.Is(err, errTransientScan) {
		t.Fatalf("ByTarget err=%v, want errTransientScan after a second failure", err)
	}
}

func TestIsLiveAtRestrictsToInstant(t *testing.T) {
	ctx := context.Background()
	kvStore := memkv.New()
	m := New(kvStore)

	base, _ := delta.New("a", "sys", 100, []delta.Pointer{{Role: "r", Target: delta.NewStringTarget("v")}})
	mustAppend(t, ctx, kvStore, m, base)
	neg, _ := delta.New("a", "sys", 200, []delta.Pointer{{Role: delta.RoleNegates, Target: delta.NewObjectTarget(base.ID, "")}})
	mustAppend(t, ctx, kvStore, m, neg)

	liveBefore, err := m.IsLiveAt(ctx, base.ID, 150)
	if err != nil || !liveBefore {
		t.Fatalf("expected base live at t=150 (before negation), live=%v err=%v", liveBefore, err)
	}
	liveAfter, err := m.IsLiveAt(ctx, base.ID, 250)
	if err != nil || liveAfter {
		t.Fatalf("expected base dead at t=250 (after negation), live=%v err=%v", liveAfter, err)
	}
}
