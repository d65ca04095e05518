package materialize

import "fmt"

// NotFoundError is returned by Materialize when zero live deltas reference
// objectID.
type NotFoundError struct {
	ObjectID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("materialize: object %q not found", e.ObjectID)
}
