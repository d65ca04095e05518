package delta

import "fmt"

// Reason is a stable code identifying why a delta failed validation.
type Reason string

const (
	ReasonEmptyPointers    Reason = "EMPTY_POINTERS"
	ReasonBadTarget        Reason = "BAD_TARGET"
	ReasonEmptyObjectID    Reason = "EMPTY_OBJECT_ID"
	ReasonNegatesNonObject Reason = "NEGATES_NON_OBJECT"
)

// InvalidDeltaError is returned by New and Validate when a delta fails the
// invariants in the data model: a non-empty pointer list, well-formed
// targets, and a negates pointer that references an object.
type InvalidDeltaError struct {
	Reason Reason
	Msg    string
}

func (e *InvalidDeltaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

func invalid(reason Reason, msg string) error {
	return &InvalidDeltaError{Reason: reason, Msg: msg}
}
