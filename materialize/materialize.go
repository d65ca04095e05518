// Package materialize evaluates a HyperSchema against indexed deltas to
// assemble a typed HyperView for an object, including nested/recursive
// schema expansion with cycle breaking and the time-travel variant that
// restricts both the candidate set and the liveness computation to a
// fixed instant.
package materialize

import (
	"context"
	"fmt"
	"sort"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/index"
	"hyperdelta.dev/engine/schema"
	"hyperdelta.dev/engine/store"
)

// View is the materialized projection of one object under one schema:
// {"id": objectId, <attr>: value, ...}.
type View = map[string]any

type deltaStore interface {
	Get(ctx context.Context, ids []string) ([]*delta.Delta, error)
}

type Materializer struct {
	store    deltaStore
	index    *index.Manager
	registry *schema.Registry
}

func New(st *store.Store, idx *index.Manager, registry *schema.Registry) *Materializer {
	return &Materializer{store: st, index: idx, registry: registry}
}

// Materialize assembles objectID under schemaID using all currently live
// deltas, recursively expanding nested schemas up to depth levels.
func (m *Materializer) Materialize(ctx context.Context, objectID, schemaID string, depth int) (View, error) {
	return m.materialize(ctx, objectID, schemaID, depth, nil, make(map[string]bool))
}

// MaterializeAt is the time-travel variant: it restricts the candidate
// delta set to timestamp <= at and computes liveness using only negations
// with timestamp <= at.
func (m *Materializer) MaterializeAt(ctx context.Context, objectID, schemaID string, depth int, at int64) (View, error) {
	return m.materialize(ctx, objectID, schemaID, depth, &at, make(map[string]bool))
}

func (m *Materializer) materialize(ctx context.Context, objectID, schemaID string, depth int, at *int64, visited map[string]bool) (View, error) {
	s, ok := m.registry.Get(schemaID)
	if !ok {
		return nil, &schema.ErrUnknownSchema{SchemaID: schemaID}
	}
	return m.materializeWithSchema(ctx, objectID, s, depth, at, visited)
}

func (m *Materializer) materializeWithSchema(ctx context.Context, objectID string, s schema.HyperSchema, depth int, at *int64, visited map[string]bool) (View, error) {
	visitKey := objectID + "\x00" + s.ID
	visited[visitKey] = true

	candidates, err := m.liveCandidates(ctx, objectID, at)
	if err != nil {
		return nil, err
	}
	// The object exists iff at least one live delta references it; an
	// object whose live deltas all fail the select predicate still
	// materializes, just with no attribute contributions.
	if len(candidates) == 0 {
		return nil, &NotFoundError{ObjectID: objectID}
	}

	sel := s.EffectiveSelect()
	var selected []*delta.Delta
	for _, d := range candidates {
		if sel(schema.Ctx{ObjectID: objectID, Delta: d}) {
			selected = append(selected, d)
		}
	}

	view := View{"id": objectID}
	for attr, rule := range s.Transform {
		value, err := m.resolveAttribute(ctx, objectID, attr, rule, selected, s.UsesBuiltinSelect(), depth, at, visited)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		view[attr] = value
	}
	return view, nil
}

// liveCandidates fetches byTarget(objectId), drops non-live deltas, and
// (for time-travel) drops deltas created after at.
func (m *Materializer) liveCandidates(ctx context.Context, objectID string, at *int64) ([]*delta.Delta, error) {
	ids, err := m.index.ByTarget(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	deltas, err := m.store.Get(ctx, idList)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	var out []*delta.Delta
	for _, d := range deltas {
		if at != nil && d.Timestamp > *at {
			continue
		}
		var live bool
		if at != nil {
			live, err = m.index.IsLiveAt(ctx, d.ID, *at)
		} else {
			live, err = m.index.IsLive(ctx, d.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("materialize: %w", err)
		}
		if !live {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type contribution struct {
	delta *delta.Delta
	value any // primitive value, or object-ref id (string) for nested attrs
}

// resolveAttribute collects attr's contributions from selected deltas.
// requireSibling applies the built-in selectByTargetContext rule: a
// pointer only contributes when a sibling pointer in the same delta
// targets {id: objectId, context: attr}; schemas with a custom select
// predicate contribute on the when rule alone.
func (m *Materializer) resolveAttribute(ctx context.Context, objectID, attr string, rule schema.AttributeRule, selected []*delta.Delta, requireSibling bool, depth int, at *int64, visited map[string]bool) (any, error) {
	var contributions []contribution
	for _, d := range selected {
		for _, p := range d.Pointers {
			if !rule.When(schema.Ctx{ObjectID: objectID, Delta: d, Pointer: p}) {
				continue
			}
			if requireSibling && !hasSiblingContext(d, objectID, attr) {
				continue
			}
			switch rule.Schema.Kind {
			case schema.AttrPrimitive:
				v, ok := schema.CoercePrimitive(p.Target, rule.Schema.Primitive)
				if !ok {
					continue
				}
				contributions = append(contributions, contribution{delta: d, value: v})
			case schema.AttrNested:
				if !p.Target.IsObject() {
					continue
				}
				contributions = append(contributions, contribution{delta: d, value: p.Target.ObjectID})
			}
		}
	}
	if len(contributions) == 0 {
		return nil, nil
	}

	sort.SliceStable(contributions, func(i, j int) bool {
		a, b := contributions[i].delta, contributions[j].delta
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ID < b.ID
	})

	card := rule.Cardinality
	if card == schema.CardinalityAuto {
		if len(contributions) == 1 {
			card = schema.CardinalityOne
		} else {
			card = schema.CardinalityMany
		}
	}

	if card == schema.CardinalityOne {
		winner := contributions[len(contributions)-1] // chronologically latest, ties by id ascending kept latest-id last
		return m.finalizeValue(ctx, winner.value, rule, depth, at, visited)
	}

	values := make([]any, 0, len(contributions))
	for _, c := range contributions {
		v, err := m.finalizeValue(ctx, c.value, rule, depth, at, visited)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func hasSiblingContext(d *delta.Delta, objectID, attr string) bool {
	for _, p := range d.Pointers {
		if p.Target.IsObject() && p.Target.ObjectID == objectID && p.Target.HasContext && p.Target.ObjectContext == attr {
			return true
		}
	}
	return false
}

// finalizeValue turns a raw contribution value into the output
// representation: primitives pass through; nested object ids resolve to
// either a full nested view (if depth allows and the schema is known and
// unvisited) or a {_ref} stub.
func (m *Materializer) finalizeValue(ctx context.Context, value any, rule schema.AttributeRule, depth int, at *int64, visited map[string]bool) (any, error) {
	if rule.Schema.Kind == schema.AttrPrimitive {
		return value, nil
	}
	refID := value.(string)
	stub := map[string]any{"_ref": refID}
	if depth <= 0 {
		return stub, nil
	}
	nestedSchema, ok := m.registry.Get(rule.Schema.NestedSchema)
	if !ok {
		return stub, nil
	}
	visitKey := refID + "\x00" + nestedSchema.ID
	if visited[visitKey] {
		return stub, nil
	}
	childVisited := make(map[string]bool, len(visited))
	for k, v := range visited {
		childVisited[k] = v
	}
	nested, err := m.materializeWithSchema(ctx, refID, nestedSchema, depth-1, at, childVisited)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return stub, nil
		}
		return nil, err
	}
	return nested, nil
}
