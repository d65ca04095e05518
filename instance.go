// Package hyperdelta composes the delta model, storage/indexing,
// materializer, HyperView cache, and subscription bus into the instance
// façade applications embed: it issues the system id, sequences writes
// through an internal FIFO queue, and is the sole owner of the kv.Store,
// subscription bus, and HyperView cache handles.
package hyperdelta

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/hyperview"
	"hyperdelta.dev/engine/internal/kv/boltkv"
	"hyperdelta.dev/engine/internal/kv/memkv"
	"hyperdelta.dev/engine/kv"
	"hyperdelta.dev/engine/materialize"
	"hyperdelta.dev/engine/schema"
	"hyperdelta.dev/engine/store"
	"hyperdelta.dev/engine/subscribe"
)

// Stats is the read-only snapshot GetStats returns.
type Stats struct {
	SystemID      string
	Cache         hyperview.Stats
	Subscriptions int
}

// Instance is one process-local embodiment of the engine: its own
// indexes, cache, and bus.
type Instance struct {
	systemID string
	clock    Clock
	logger   *slog.Logger

	backend  kv.Store
	store    *store.Store
	registry *schema.Registry
	mat      *materialize.Materializer
	cache    *hyperview.Cache
	bus      *subscribe.Bus

	writes chan writeCmd

	mu            sync.Mutex
	lastTimestamp int64
	closed        bool
}

type writeCmd struct {
	run  func() error
	done chan error
}

// Open constructs an Instance per cfg. The returned Instance owns
// backend, bus, and cache exclusively; Close releases the backend.
func Open(cfg Config) (*Instance, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	var backend kv.Store
	var err error
	switch cfg.Storage {
	case StoragePersistent:
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, backendIO("open", err)
		}
		backend, err = boltkv.Open(cfg.DataDir)
	default:
		backend = memkv.New()
	}
	if err != nil {
		return nil, backendIO("open", err)
	}

	systemID, err := resolveSystemID(cfg, cfg.DataDir)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	logger := slog.Default()
	st := store.New(backend, cfg.EnableIndexing)
	registry := schema.NewRegistry()
	mat := materialize.New(st, st.Index(), registry)
	cache := hyperview.New(cfg.CacheSize)
	bus := subscribe.New(cfg.SubscriptionQueueSize, cfg.BackpressurePolicy, logger)

	inst := &Instance{
		systemID: systemID,
		clock:    clock,
		logger:   logger,
		backend:  backend,
		store:    st,
		registry: registry,
		mat:      mat,
		cache:    cache,
		bus:      bus,
		writes:   make(chan writeCmd),
	}
	go inst.runWriteLoop()
	return inst, nil
}

// runWriteLoop is the internal FIFO queue serializing every write-side
// operation: one goroutine drains writes strictly in submission order,
// guaranteeing linearizable append order regardless of how many
// goroutines call PersistDelta concurrently.
func (inst *Instance) runWriteLoop() {
	for cmd := range inst.writes {
		cmd.done <- cmd.run()
	}
}

// submitWrite enqueues fn on the FIFO write queue and blocks until it has
// run; writes are not cancellable once enqueued. The mutex is held across
// the channel send so Close can never close inst.writes while a
// submission is in flight.
func (inst *Instance) submitWrite(fn func() error) error {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return ErrClosed
	}
	done := make(chan error, 1)
	inst.writes <- writeCmd{run: fn, done: done}
	inst.mu.Unlock()
	return <-done
}

// SystemID returns the instance's stable system identifier.
func (inst *Instance) SystemID() string { return inst.systemID }

// CreateDelta builds a fully validated, content-addressed delta stamped
// with this instance's systemId and current clock reading. Timestamps are
// strictly monotonic per instance: on clock regression the reading is
// clamped to one past the last issued timestamp.
func (inst *Instance) CreateDelta(author string, pointers []delta.Pointer) (*delta.Delta, error) {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return nil, ErrClosed
	}
	now := inst.clock.NowMillis()
	if now <= inst.lastTimestamp {
		now = inst.lastTimestamp + 1
	}
	inst.lastTimestamp = now
	inst.mu.Unlock()

	return delta.New(author, inst.systemID, now, pointers)
}

// PersistDelta appends d through the write FIFO, invalidates any cached
// HyperViews it touches, and publishes it to the subscription bus.
func (inst *Instance) PersistDelta(ctx context.Context, d *delta.Delta) (appended bool, err error) {
	err = inst.submitWrite(func() error {
		var werr error
		appended, werr = inst.store.Append(ctx, d)
		if werr != nil {
			return backendIO("append", werr)
		}
		if appended {
			inst.invalidateCache(ctx, d)
			inst.bus.Publish(d)
		}
		return nil
	})
	return appended, err
}

// invalidateCache evicts cached views for every object d references, and,
// when d is a negation, for every object referenced by the delta chain it
// flips: a negation only points at a delta id, but the views it makes
// stale are those of the objects the negated delta (or, for a negation of
// a negation, the delta at the bottom of the chain) contributes to.
func (inst *Instance) invalidateCache(ctx context.Context, d *delta.Delta) {
	inst.cache.InvalidateForDelta(d)
	seen := map[string]struct{}{d.ID: {}}
	cur := d
	for {
		negated, ok := cur.Negates()
		if !ok {
			return
		}
		if _, dup := seen[negated]; dup {
			return
		}
		seen[negated] = struct{}{}
		targets, err := inst.store.Get(ctx, []string{negated})
		if err != nil || len(targets) == 0 {
			return
		}
		cur = targets[0]
		inst.cache.InvalidateForDelta(cur)
	}
}

// PersistDeltas appends every delta in deltas as a single FIFO-serialized
// batch: each delta append is attempted in order, and no other write
// interleaves while the batch runs.
func (inst *Instance) PersistDeltas(ctx context.Context, deltas []*delta.Delta) ([]bool, error) {
	results := make([]bool, len(deltas))
	err := inst.submitWrite(func() error {
		for i, d := range deltas {
			appended, werr := inst.store.Append(ctx, d)
			if werr != nil {
				return backendIO("append", werr)
			}
			results[i] = appended
			if appended {
				inst.invalidateCache(ctx, d)
				inst.bus.Publish(d)
			}
		}
		return nil
	})
	return results, err
}

// Negate composes and persists a negation delta targeting deltaID,
// optionally carrying a human-readable negation_reason pointer. The
// reason rides on the negation delta itself, so a replicator forwarding
// raw deltas carries it automatically.
func (inst *Instance) Negate(ctx context.Context, author, deltaID, reason string) (*delta.Delta, error) {
	pointers := []delta.Pointer{{Role: delta.RoleNegates, Target: delta.NewObjectTarget(deltaID, "")}}
	if reason != "" {
		pointers = append(pointers, delta.Pointer{Role: delta.RoleNegationReason, Target: delta.NewStringTarget(reason)})
	}
	d, err := inst.CreateDelta(author, pointers)
	if err != nil {
		return nil, err
	}
	if _, err := inst.PersistDelta(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// QueryDeltas selects deltas matching f, excluding non-live deltas unless
// f.IncludeNegated.
func (inst *Instance) QueryDeltas(ctx context.Context, f store.Filter) ([]*delta.Delta, error) {
	if inst.isClosed() {
		return nil, ErrClosed
	}
	out, err := inst.store.QueryDeltas(ctx, f)
	if err != nil {
		return nil, backendIO("query", err)
	}
	return out, nil
}

// GetDeltas fetches deltas by id, preserving request order; missing ids
// are omitted.
func (inst *Instance) GetDeltas(ctx context.Context, ids []string) ([]*delta.Delta, error) {
	if inst.isClosed() {
		return nil, ErrClosed
	}
	out, err := inst.store.Get(ctx, ids)
	if err != nil {
		return nil, backendIO("get", err)
	}
	return out, nil
}

// Materialize assembles objectID under schemaID, consulting the HyperView
// cache first and populating it on a miss.
func (inst *Instance) Materialize(ctx context.Context, objectID, schemaID string, depth int) (materialize.View, error) {
	return inst.materialize(ctx, objectID, schemaID, depth, nil)
}

// MaterializeAt is the time-travel variant, restricted to deltas with
// timestamp <= at; liveness counts only negations with timestamp <= at.
func (inst *Instance) MaterializeAt(ctx context.Context, objectID, schemaID string, depth int, at int64) (materialize.View, error) {
	return inst.materialize(ctx, objectID, schemaID, depth, &at)
}

func (inst *Instance) materialize(ctx context.Context, objectID, schemaID string, depth int, at *int64) (materialize.View, error) {
	if inst.isClosed() {
		return nil, ErrClosed
	}
	if _, ok := inst.registry.Get(schemaID); !ok {
		return nil, &UnknownSchemaError{SchemaID: schemaID}
	}
	if v, ok := inst.cache.Get(objectID, schemaID, depth, at); ok {
		return v, nil
	}

	var view materialize.View
	var err error
	if at != nil {
		view, err = inst.mat.MaterializeAt(ctx, objectID, schemaID, depth, *at)
	} else {
		view, err = inst.mat.Materialize(ctx, objectID, schemaID, depth)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: object %q under schema %q", ErrNotFound, objectID, schemaID)
		}
		return nil, backendIO("materialize", err)
	}
	inst.cache.Put(objectID, schemaID, depth, at, view)
	return view, nil
}

func isNotFound(err error) bool {
	_, ok := err.(*materialize.NotFoundError)
	return ok
}

// RegisterSchema registers s with this instance's schema registry.
func (inst *Instance) RegisterSchema(s schema.HyperSchema) {
	inst.registry.Register(s)
}

// Subscribe registers a filtered callback with the subscription bus.
func (inst *Instance) Subscribe(filter store.Filter, cb subscribe.Callback) subscribe.Unsubscribe {
	return inst.bus.Subscribe(filter, cb)
}

// GetStats returns a read-only snapshot of cache and subscription
// counters.
func (inst *Instance) GetStats() Stats {
	return Stats{
		SystemID:      inst.systemID,
		Cache:         inst.cache.Stats(),
		Subscriptions: inst.bus.Count(),
	}
}

func (inst *Instance) isClosed() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.closed
}

// Close stops the write queue and releases the backend handle; subsequent
// operations that return an error return ErrClosed (see ErrClosed for which
// ones). Existing subscriptions are not cancelled.
func (inst *Instance) Close() error {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return nil
	}
	inst.closed = true
	inst.mu.Unlock()

	close(inst.writes)
	if err := inst.backend.Close(); err != nil {
		return backendIO("close", err)
	}
	return nil
}
