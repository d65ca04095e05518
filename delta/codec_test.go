package delta

import (
	"strings"
	"testing"
)

func TestCanonicalPayloadKeyOrder(t *testing.T) {
	p := []Pointer{{Role: "r", Target: NewObjectTarget("o1", "ctx")}}
	payload := string(canonicalPayload("alice", "sys", 42, p))

	// Top-level keys must appear in lexicographic order: author, pointers,
	// system, timestamp.
	for _, pair := range [][2]string{
		{`"author"`, `"pointers"`},
		{`"pointers"`, `"system"`},
		{`"system"`, `"timestamp"`},
	} {
		if strings.Index(payload, pair[0]) >= strings.Index(payload, pair[1]) {
			t.Fatalf("expected %s before %s in %s", pair[0], pair[1], payload)
		}
	}
	// Object target keys: context before id.
	if strings.Index(payload, `"context"`) >= strings.Index(payload, `"id"`) {
		t.Fatalf("expected context before id in object target: %s", payload)
	}
}

func TestCanonicalPayloadOmitsAbsentContext(t *testing.T) {
	p := []Pointer{{Role: "r", Target: NewObjectTarget("o1", "")}}
	payload := string(canonicalPayload("alice", "sys", 1, p))
	if strings.Contains(payload, `"context"`) {
		t.Fatalf("expected no context key when absent: %s", payload)
	}
}

func TestCanonicalPayloadPrimitiveTokens(t *testing.T) {
	cases := []struct {
		target Target
		want   string
	}{
		{NewBooleanTarget(true), "true"},
		{NewBooleanTarget(false), "false"},
		{NewNullTarget(), "null"},
		{NewIntegerTarget(-7), "-7"},
	}
	for _, c := range cases {
		payload := string(canonicalPayload("a", "s", 1, []Pointer{{Role: "r", Target: c.target}}))
		if !strings.Contains(payload, `"target":`+c.want) {
			t.Fatalf("payload %s does not contain target:%s", payload, c.want)
		}
	}
}

func TestDecodeRejectsUnrecognizedTargetShape(t *testing.T) {
	_, err := Decode([]byte(`{"author":"a","id":"x","pointers":[{"role":"r","target":[1,2]}],"system":"s","timestamp":1}`))
	if err == nil {
		t.Fatalf("expected error decoding array-shaped target")
	}
}
