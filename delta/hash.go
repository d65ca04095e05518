package delta

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash computes the content address of {author, system, timestamp,
// pointers}: the lowercase hex SHA3-256 digest of the canonical encoding.
// Two deltas with equal content hash to the same id; the id is excluded
// from the hashed payload itself.
func Hash(author, system string, timestamp int64, pointers []Pointer) string {
	payload := canonicalPayload(author, system, timestamp, pointers)
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// New validates pointers and builds a fully populated Delta, computing its
// content-addressed id. author and system are opaque caller-supplied
// identifiers; timestamp is milliseconds since the Unix epoch.
func New(author, system string, timestamp int64, pointers []Pointer) (*Delta, error) {
	if err := Validate(author, system, pointers); err != nil {
		return nil, err
	}
	id := Hash(author, system, timestamp, pointers)
	return &Delta{
		ID:        id,
		Author:    author,
		System:    system,
		Timestamp: timestamp,
		Pointers:  append([]Pointer(nil), pointers...),
	}, nil
}
