package delta

import "fmt"

// Validate checks the data-model invariants: a non-empty pointer list,
// every pointer carrying a well-formed target, and the reserved "negates"
// role only ever pointing at an object.
func Validate(author, system string, pointers []Pointer) error {
	if len(pointers) == 0 {
		return invalid(ReasonEmptyPointers, "delta must carry at least one pointer")
	}
	for i, p := range pointers {
		if err := validateTarget(p.Target); err != nil {
			return err
		}
		if p.Role == RoleNegates && !p.Target.IsObject() {
			return invalid(ReasonNegatesNonObject, fmt.Sprintf("pointer at index %d uses reserved role %q on a non-object target", i, RoleNegates))
		}
	}
	return nil
}

func validateTarget(t Target) error {
	switch t.Kind {
	case TargetString, TargetInteger, TargetBoolean, TargetNull:
		return nil
	case TargetObject:
		if t.ObjectID == "" {
			return invalid(ReasonEmptyObjectID, "object target has empty id")
		}
		return nil
	default:
		return invalid(ReasonBadTarget, "target has neither a primitive nor an object shape")
	}
}
