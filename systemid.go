package hyperdelta

import "github.com/google/uuid"

// newSystemID generates an opaque stable identifier for a fresh instance.
func newSystemID() string {
	return uuid.NewString()
}
