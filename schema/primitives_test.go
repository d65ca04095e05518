package schema

import (
	"testing"

	"hyperdelta.dev/engine/delta"
)

func TestCoercePrimitive(t *testing.T) {
	cases := []struct {
		name   string
		target delta.Target
		kind   PrimitiveKind
		want   any
		ok     bool
	}{
		{"string", delta.NewStringTarget("x"), KindString, "x", true},
		{"string rejects integer", delta.NewIntegerTarget(1), KindString, nil, false},
		{"integer", delta.NewIntegerTarget(42), KindInteger, int64(42), true},
		{"integer rejects boolean", delta.NewBooleanTarget(true), KindInteger, nil, false},
		{"year in range", delta.NewIntegerTarget(1999), KindYear, int64(1999), true},
		{"year at lower bound", delta.NewIntegerTarget(1800), KindYear, int64(1800), true},
		{"year at upper bound", delta.NewIntegerTarget(2200), KindYear, int64(2200), true},
		{"year below range", delta.NewIntegerTarget(1799), KindYear, nil, false},
		{"year above range", delta.NewIntegerTarget(2201), KindYear, nil, false},
		{"boolean", delta.NewBooleanTarget(true), KindBoolean, true, true},
		{"number from integer", delta.NewIntegerTarget(3), KindNumber, float64(3), true},
		{"number rejects string", delta.NewStringTarget("3"), KindNumber, nil, false},
		{"null conforms to nothing", delta.NewNullTarget(), KindString, nil, false},
		{"object conforms to nothing", delta.NewObjectTarget("o1", ""), KindString, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := CoercePrimitive(c.target, c.kind)
			if ok != c.ok {
				t.Fatalf("CoercePrimitive ok=%v want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Fatalf("CoercePrimitive = %v (%T), want %v (%T)", got, got, c.want, c.want)
			}
		})
	}
}
