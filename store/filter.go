package store

import "hyperdelta.dev/engine/delta"

// TimeRange bounds a timestamp query; a nil bound is unbounded on that
// side.
type TimeRange struct {
	From *int64
	To   *int64
}

// Filter selects deltas along independent dimensions; non-empty/non-nil
// dimensions are ANDed together. An omitted dimension is a wildcard.
type Filter struct {
	Authors        []string
	TargetIDs      []string
	TargetContexts []string
	TimeRange      *TimeRange
	IncludeNegated bool
	Limit          int
}

// Matches reports whether d satisfies every non-empty dimension of f. It
// does not consider liveness/negation; callers apply that separately.
func (f Filter) Matches(d *delta.Delta) bool {
	if len(f.Authors) > 0 && !contains(f.Authors, d.Author) {
		return false
	}
	if len(f.TargetIDs) > 0 && !hasTargetID(d, f.TargetIDs) {
		return false
	}
	if len(f.TargetContexts) > 0 && !hasTargetContext(d, f.TargetContexts) {
		return false
	}
	if f.TimeRange != nil {
		if f.TimeRange.From != nil && d.Timestamp < *f.TimeRange.From {
			return false
		}
		if f.TimeRange.To != nil && d.Timestamp > *f.TimeRange.To {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func hasTargetID(d *delta.Delta, ids []string) bool {
	for _, p := range d.Pointers {
		if p.Target.IsObject() && contains(ids, p.Target.ObjectID) {
			return true
		}
	}
	return false
}

func hasTargetContext(d *delta.Delta, contexts []string) bool {
	for _, p := range d.Pointers {
		if p.Target.IsObject() && p.Target.HasContext && contains(contexts, p.Target.ObjectContext) {
			return true
		}
	}
	return false
}
