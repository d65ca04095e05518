package delta

import "testing"

func TestNewContentAddressing(t *testing.T) {
	pointers := []Pointer{
		{Role: "named", Target: NewObjectTarget("p1", "name")},
		{Role: "name", Target: NewStringTarget("Alice")},
	}
	a, err := New("alice", "sys1", 1000, pointers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New("alice", "sys1", 1000, pointers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("equal content produced different ids: %s vs %s", a.ID, b.ID)
	}
	if len(a.ID) != 64 {
		t.Fatalf("id len=%d, want 64 hex chars (sha3-256)", len(a.ID))
	}
}

func TestNewDifferentContentDifferentID(t *testing.T) {
	p1 := []Pointer{{Role: "name", Target: NewStringTarget("Alice")}}
	p2 := []Pointer{{Role: "name", Target: NewStringTarget("Alicia")}}
	a, _ := New("alice", "sys1", 1000, p1)
	b, _ := New("alice", "sys1", 1000, p2)
	if a.ID == b.ID {
		t.Fatalf("different content produced the same id")
	}
}

func TestValidateRejectsEmptyPointers(t *testing.T) {
	_, err := New("alice", "sys1", 1000, nil)
	if err == nil {
		t.Fatalf("expected error for empty pointers")
	}
	ide, ok := err.(*InvalidDeltaError)
	if !ok || ide.Reason != ReasonEmptyPointers {
		t.Fatalf("got %v, want InvalidDeltaError{EMPTY_POINTERS}", err)
	}
}

func TestValidateRejectsEmptyObjectID(t *testing.T) {
	_, err := New("alice", "sys1", 1000, []Pointer{{Role: "r", Target: NewObjectTarget("", "")}})
	if err == nil {
		t.Fatalf("expected error for empty object id")
	}
}

func TestValidateRejectsNegatesOnNonObject(t *testing.T) {
	_, err := New("alice", "sys1", 1000, []Pointer{{Role: RoleNegates, Target: NewStringTarget("oops")}})
	if err == nil {
		t.Fatalf("expected error for negates pointer on non-object target")
	}
}

func TestNegatesReportsTarget(t *testing.T) {
	d, err := New("alice", "sys1", 1000, []Pointer{{Role: RoleNegates, Target: NewObjectTarget("d1", "")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target, ok := d.Negates()
	if !ok || target != "d1" {
		t.Fatalf("Negates() = (%q, %v), want (\"d1\", true)", target, ok)
	}
	if !d.IsNegation() {
		t.Fatalf("IsNegation() = false, want true")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d, err := New("alice", "sys1", 1000, []Pointer{
		{Role: "named", Target: NewObjectTarget("p1", "name")},
		{Role: "name", Target: NewStringTarget("Alice")},
		{Role: "age", Target: NewIntegerTarget(30)},
		{Role: "active", Target: NewBooleanTarget(true)},
		{Role: "note", Target: NewNullTarget()},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	decoded, err := Decode(Encode(d))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ID != d.ID || decoded.Author != d.Author || decoded.System != d.System || decoded.Timestamp != d.Timestamp {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, d)
	}
	if len(decoded.Pointers) != len(d.Pointers) {
		t.Fatalf("round trip pointer count mismatch: got %d, want %d", len(decoded.Pointers), len(d.Pointers))
	}
}

func TestHashIsPointerOrderSensitive(t *testing.T) {
	// Pointers are order-significant for the canonical encoding: two
	// deltas built from differently ordered slices hash differently, even
	// though the pointer multiset is equal.
	p := []Pointer{
		{Role: "a", Target: NewStringTarget("x")},
		{Role: "b", Target: NewStringTarget("y")},
	}
	reversed := []Pointer{p[1], p[0]}
	h1 := Hash("alice", "sys", 1, p)
	h2 := Hash("alice", "sys", 1, reversed)
	if h1 == h2 {
		t.Fatalf("expected different hashes for different pointer orders")
	}
}
