package schema

import (
	"testing"

	"hyperdelta.dev/engine/delta"
)

func TestRoleEquals(t *testing.T) {
	p := delta.Pointer{Role: "name", Target: delta.NewStringTarget("Alice")}
	ctx := Ctx{Pointer: p}
	if !RoleEquals("name")(ctx) {
		t.Fatalf("expected RoleEquals(name) to match")
	}
	if RoleEquals("age")(ctx) {
		t.Fatalf("expected RoleEquals(age) not to match")
	}
}

func TestPrimitiveIs(t *testing.T) {
	strCtx := Ctx{Pointer: delta.Pointer{Target: delta.NewStringTarget("x")}}
	intCtx := Ctx{Pointer: delta.Pointer{Target: delta.NewIntegerTarget(1)}}
	if !PrimitiveIs(KindString)(strCtx) {
		t.Fatalf("expected string target to match KindString")
	}
	if PrimitiveIs(KindString)(intCtx) {
		t.Fatalf("expected integer target not to match KindString")
	}
}

func TestTargetContextEquals(t *testing.T) {
	d, _ := delta.New("a", "sys", 1, []delta.Pointer{
		{Role: "named", Target: delta.NewObjectTarget("p1", "name")},
		{Role: "name", Target: delta.NewStringTarget("Alice")},
	})
	ctx := Ctx{ObjectID: "p1", Delta: d}
	if !TargetContextEquals("name")(ctx) {
		t.Fatalf("expected TargetContextEquals(name) to match")
	}
	if TargetContextEquals("age")(ctx) {
		t.Fatalf("expected TargetContextEquals(age) not to match")
	}
}

func TestNotAndOr(t *testing.T) {
	always := Always()
	never := Not(always)
	ctx := Ctx{}
	if never(ctx) {
		t.Fatalf("Not(Always()) should never match")
	}
	if !And(always, always)(ctx) {
		t.Fatalf("And(true, true) should match")
	}
	if And(always, never)(ctx) {
		t.Fatalf("And(true, false) should not match")
	}
	if !Or(never, always)(ctx) {
		t.Fatalf("Or(false, true) should match")
	}
	if Or(never, never)(ctx) {
		t.Fatalf("Or(false, false) should not match")
	}
}

func TestSelectByTargetContext(t *testing.T) {
	d, _ := delta.New("a", "sys", 1, []delta.Pointer{
		{Role: "named", Target: delta.NewObjectTarget("p1", "age")},
		{Role: "age", Target: delta.NewIntegerTarget(30)},
	})
	sel := SelectByTargetContext([]string{"name", "age"})
	if !sel(Ctx{ObjectID: "p1", Delta: d}) {
		t.Fatalf("expected selector to match a delta targeting one of its declared attrs")
	}
	if sel(Ctx{ObjectID: "p2", Delta: d}) {
		t.Fatalf("expected selector not to match a different object id")
	}
}

func TestFuncPredicateEscapeHatch(t *testing.T) {
	p := FuncPredicate(func(c Ctx) bool { return c.ObjectID == "special" })
	if !p(Ctx{ObjectID: "special"}) {
		t.Fatalf("expected custom predicate to match")
	}
	if p(Ctx{ObjectID: "other"}) {
		t.Fatalf("expected custom predicate not to match")
	}
}
