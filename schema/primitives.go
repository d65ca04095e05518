package schema

import "hyperdelta.dev/engine/delta"

// PrimitiveKind is one of the primitive schemas the materializer
// recognizes.
type PrimitiveKind string

const (
	KindString  PrimitiveKind = "String"
	KindInteger PrimitiveKind = "Integer"
	KindYear    PrimitiveKind = "Integer.Year"
	KindBoolean PrimitiveKind = "Boolean"
	KindNumber  PrimitiveKind = "Number"
)

// CoercePrimitive attempts to coerce t to kind. Coercion is strict: a
// non-conforming target yields (nil, false), which callers treat as "skip
// this pointer", never as an error.
func CoercePrimitive(t delta.Target, kind PrimitiveKind) (any, bool) {
	switch kind {
	case KindString:
		if t.Kind == delta.TargetString {
			return t.Str, true
		}
	case KindInteger:
		if t.Kind == delta.TargetInteger {
			return t.Int, true
		}
	case KindYear:
		if t.Kind == delta.TargetInteger && t.Int >= 1800 && t.Int <= 2200 {
			return t.Int, true
		}
	case KindBoolean:
		if t.Kind == delta.TargetBoolean {
			return t.Bln, true
		}
	case KindNumber:
		switch t.Kind {
		case delta.TargetInteger:
			return float64(t.Int), true
		}
	}
	return nil, false
}
