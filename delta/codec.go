package delta

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// canonicalPayload renders {author, pointers, system, timestamp} as the
// byte-deterministic JSON object hashed to produce a delta's id: keys in
// lexicographic order at every level, UTF-8 NFC strings, decimal integers
// without leading zeros, and the true/false/null tokens. The id itself is
// excluded; it is appended only after hashing.
func canonicalPayload(author, system string, timestamp int64, pointers []Pointer) []byte {
	var buf []byte
	buf = append(buf, '{')
	buf = appendKey(buf, "author", true)
	buf = appendString(buf, author)
	buf = appendKey(buf, "pointers", false)
	buf = append(buf, '[')
	for i, p := range pointers {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendPointer(buf, p)
	}
	buf = append(buf, ']')
	buf = appendKey(buf, "system", false)
	buf = appendString(buf, system)
	buf = appendKey(buf, "timestamp", false)
	buf = strconv.AppendInt(buf, timestamp, 10)
	buf = append(buf, '}')
	return buf
}

func appendKey(buf []byte, key string, first bool) []byte {
	if !first {
		buf = append(buf, ',')
	}
	buf = appendString(buf, key)
	buf = append(buf, ':')
	return buf
}

func appendPointer(buf []byte, p Pointer) []byte {
	buf = append(buf, '{')
	buf = appendKey(buf, "role", true)
	buf = appendString(buf, p.Role)
	buf = appendKey(buf, "target", false)
	buf = appendTarget(buf, p.Target)
	buf = append(buf, '}')
	return buf
}

func appendTarget(buf []byte, t Target) []byte {
	switch t.Kind {
	case TargetString:
		return appendString(buf, t.Str)
	case TargetInteger:
		return strconv.AppendInt(buf, t.Int, 10)
	case TargetBoolean:
		if t.Bln {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case TargetNull:
		return append(buf, "null"...)
	case TargetObject:
		buf = append(buf, '{')
		first := true
		if t.HasContext {
			buf = appendKey(buf, "context", true)
			buf = appendString(buf, t.ObjectContext)
			first = false
		}
		buf = appendKey(buf, "id", first)
		buf = appendString(buf, t.ObjectID)
		buf = append(buf, '}')
		return buf
	default:
		return append(buf, "null"...)
	}
}

// appendString normalizes s to NFC and appends it as a JSON string literal.
func appendString(buf []byte, s string) []byte {
	s = norm.NFC.String(s)
	encoded, _ := json.Marshal(s)
	return append(buf, encoded...)
}

// Encode renders the {author, id, pointers, system, timestamp} form
// persisted at keyspace key d|<deltaId>: the canonical payload with the id
// field inserted in lexicographic position.
func Encode(d *Delta) []byte {
	var buf []byte
	buf = append(buf, '{')
	buf = appendKey(buf, "author", true)
	buf = appendString(buf, d.Author)
	buf = appendKey(buf, "id", false)
	buf = appendString(buf, d.ID)
	buf = appendKey(buf, "pointers", false)
	buf = append(buf, '[')
	for i, p := range d.Pointers {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendPointer(buf, p)
	}
	buf = append(buf, ']')
	buf = appendKey(buf, "system", false)
	buf = appendString(buf, d.System)
	buf = appendKey(buf, "timestamp", false)
	buf = strconv.AppendInt(buf, d.Timestamp, 10)
	buf = append(buf, '}')
	return buf
}

type wirePointer struct {
	Role   string          `json:"role"`
	Target json.RawMessage `json:"target"`
}

type wireDelta struct {
	Author    string        `json:"author"`
	ID        string        `json:"id"`
	Pointers  []wirePointer `json:"pointers"`
	System    string        `json:"system"`
	Timestamp int64         `json:"timestamp"`
}

// Decode parses the storage form written by Encode. It does not
// re-validate or recompute the id; callers that need that guarantee call
// Validate and compare ids themselves.
func Decode(b []byte) (*Delta, error) {
	var w wireDelta
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("delta: decode: %w", err)
	}
	pointers := make([]Pointer, 0, len(w.Pointers))
	for i, wp := range w.Pointers {
		t, err := decodeTarget(wp.Target)
		if err != nil {
			return nil, fmt.Errorf("delta: decode: pointer %d: %w", i, err)
		}
		pointers = append(pointers, Pointer{Role: wp.Role, Target: t})
	}
	return &Delta{
		ID:        w.ID,
		Author:    w.Author,
		System:    w.System,
		Timestamp: w.Timestamp,
		Pointers:  pointers,
	}, nil
}

func decodeTarget(raw json.RawMessage) (Target, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Target{}, err
	}
	switch val := v.(type) {
	case nil:
		return NewNullTarget(), nil
	case string:
		return NewStringTarget(val), nil
	case bool:
		return NewBooleanTarget(val), nil
	case float64:
		return NewIntegerTarget(int64(val)), nil
	case map[string]any:
		id, _ := val["id"].(string)
		ctx, _ := val["context"].(string)
		return NewObjectTarget(id, ctx), nil
	default:
		return Target{}, fmt.Errorf("unrecognized target shape %T", v)
	}
}
