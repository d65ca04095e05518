// Package delta implements the immutable, content-addressed delta that is
// the unit of state of the engine: a hyper-edge between values and object
// contexts, identified by the hash of its canonical encoding.
package delta

// ObjectId names a logical object. Objects have no stored record; they
// exist implicitly, as soon as any live delta carries a pointer whose
// target references the id.
type ObjectId = string

// TargetKind discriminates the two Target constructors: a primitive value
// or a reference to another object.
type TargetKind int

const (
	TargetString TargetKind = iota
	TargetInteger
	TargetBoolean
	TargetNull
	TargetObject
)

// Target is a tagged variant: either a primitive scalar or an object
// reference. The zero value is not valid; use the New* constructors.
type Target struct {
	Kind TargetKind

	Str string
	Int int64
	Bln bool

	ObjectID      ObjectId
	ObjectContext string
	HasContext    bool
}

func NewStringTarget(s string) Target   { return Target{Kind: TargetString, Str: s} }
func NewIntegerTarget(n int64) Target   { return Target{Kind: TargetInteger, Int: n} }
func NewBooleanTarget(b bool) Target    { return Target{Kind: TargetBoolean, Bln: b} }
func NewNullTarget() Target             { return Target{Kind: TargetNull} }

// NewObjectTarget references another object, optionally with a context
// label naming the attribute this pointer supplies a value for.
func NewObjectTarget(id ObjectId, context string) Target {
	t := Target{Kind: TargetObject, ObjectID: id}
	if context != "" {
		t.ObjectContext = context
		t.HasContext = true
	}
	return t
}

// IsObject reports whether the target is an object reference.
func (t Target) IsObject() bool { return t.Kind == TargetObject }

// Pointer is a single (role, target) element of a delta.
type Pointer struct {
	Role   string
	Target Target
}

// RoleNegates is the reserved role a negation delta uses to name the delta
// it retracts.
const RoleNegates = "negates"

// RoleNegationReason carries an optional human-readable reason on a
// negation delta; purely informational, it does not affect liveness.
const RoleNegationReason = "negation_reason"

// Delta is the immutable record applications append. ID is a pure function
// of the remaining fields (see Hash); it is never recomputed after
// creation.
type Delta struct {
	ID        string
	Author    string
	System    string
	Timestamp int64 // milliseconds since Unix epoch
	Pointers  []Pointer
}

// Negates returns the id of the delta this delta negates and true, if this
// delta carries a negates pointer with an object target. Liveness is not
// considered here.
func (d *Delta) Negates() (string, bool) {
	for _, p := range d.Pointers {
		if p.Role == RoleNegates && p.Target.IsObject() {
			return p.Target.ObjectID, true
		}
	}
	return "", false
}

// IsNegation reports whether the delta retracts another delta.
func (d *Delta) IsNegation() bool {
	_, ok := d.Negates()
	return ok
}
