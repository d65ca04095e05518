package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is an instance-scoped mapping from schema id to HyperSchema.
// It is deliberately not process-global: two Instances in one process
// hold independent registries.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]HyperSchema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]HyperSchema)}
}

// Register stores schema, overwriting any existing entry with the same
// id. Registration is idempotent when the new schema is equivalent to the
// stored one on every syntactically comparable field (id, name, declared
// attribute names and their primitive/nested kind, cardinality); Select
// and When are opaque Go closures and cannot be compared by value, so
// equivalence does not inspect them. Calling Register twice with the same
// id and differing predicates simply keeps the latest predicates.
func (r *Registry) Register(s HyperSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.ID] = s
}

// Get returns the schema and true, or the zero value and false if id is
// unregistered.
func (r *Registry) Get(id string) (HyperSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	return s, ok
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, id)
}

// Equivalent reports whether a and b have the same id, name, and
// attribute shape, ignoring predicate identity.
func Equivalent(a, b HyperSchema) bool {
	if a.ID != b.ID || a.Name != b.Name || len(a.Transform) != len(b.Transform) {
		return false
	}
	namesA := sortedNames(a.Transform)
	namesB := sortedNames(b.Transform)
	for i := range namesA {
		if namesA[i] != namesB[i] {
			return false
		}
		ra, rb := a.Transform[namesA[i]], b.Transform[namesB[i]]
		if ra.Schema != rb.Schema || ra.Cardinality != rb.Cardinality {
			return false
		}
	}
	return true
}

func sortedNames(m map[string]AttributeRule) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownSchema is returned when a top-level materialize call names an
// unregistered schema id; nested references to an unregistered schema
// instead degrade to a {_ref} stub.
type ErrUnknownSchema struct {
	SchemaID string
}

func (e *ErrUnknownSchema) Error() string {
	return fmt.Sprintf("schema: unknown schema %q", e.SchemaID)
}
