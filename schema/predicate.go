// Package schema implements the HyperSchema registry and the predicate
// combinator language used for a schema's select and when rules: a small
// closed set of constructors, plus an escape hatch for a genuine user
// function.
package schema

import "hyperdelta.dev/engine/delta"

// Ctx is the argument threaded through every Predicate. Select predicates
// use ObjectID and Delta; when predicates use Delta and Pointer.
type Ctx struct {
	ObjectID string
	Delta    *delta.Delta
	Pointer  delta.Pointer
}

// Predicate is either a select predicate (objectId, delta) -> bool or a
// when predicate (pointer) -> bool, depending on which fields of Ctx the
// caller populates.
type Predicate func(Ctx) bool

// Always matches unconditionally.
func Always() Predicate {
	return func(Ctx) bool { return true }
}

// RoleEquals matches a pointer whose role equals role; used to build
// `when` rules that pick out the pointer supplying an attribute's value.
func RoleEquals(role string) Predicate {
	return func(c Ctx) bool { return c.Pointer.Role == role }
}

// PrimitiveIs matches a pointer whose target coerces to the given
// primitive kind.
func PrimitiveIs(kind PrimitiveKind) Predicate {
	return func(c Ctx) bool {
		_, ok := CoercePrimitive(c.Pointer.Target, kind)
		return ok
	}
}

// TargetContextEquals matches a delta carrying a sibling pointer whose
// target is an object reference {id: ObjectID, context: attr}; this is the
// building block for the built-in selectByTargetContext.
func TargetContextEquals(attr string) Predicate {
	return func(c Ctx) bool {
		if c.Delta == nil {
			return false
		}
		for _, p := range c.Delta.Pointers {
			if p.Target.IsObject() && p.Target.ObjectID == c.ObjectID &&
				p.Target.HasContext && p.Target.ObjectContext == attr {
				return true
			}
		}
		return false
	}
}

func Not(p Predicate) Predicate {
	return func(c Ctx) bool { return !p(c) }
}

func And(ps ...Predicate) Predicate {
	return func(c Ctx) bool {
		for _, p := range ps {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

func Or(ps ...Predicate) Predicate {
	return func(c Ctx) bool {
		for _, p := range ps {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// FuncPredicate is the escape hatch for a user-supplied closure that the
// combinator language cannot express.
func FuncPredicate(f func(Ctx) bool) Predicate { return Predicate(f) }

// SelectByTargetContext is the built-in select predicate: true iff the
// delta carries a pointer targeting {id: objectId, context: A} for some
// attribute A declared in attrs.
func SelectByTargetContext(attrs []string) Predicate {
	ps := make([]Predicate, 0, len(attrs))
	for _, a := range attrs {
		ps = append(ps, TargetContextEquals(a))
	}
	return Or(ps...)
}
