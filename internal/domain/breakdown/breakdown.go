// Package breakdown implements arithmetic over sparse per-attribute score maps.
//
// Attribute sets are configured per contest, so every operation works over the
// union of keys of its operands. A missing key and a null value both count as 0.
package breakdown

import "sort"

// Breakdown maps an attribute id to a score. A nil value means "not scored".
type Breakdown map[string]*float64

// Float returns a pointer to v, for building breakdown literals.
func Float(v float64) *float64 { return &v }

// Of builds a Breakdown from plain values.
func Of(values map[string]float64) Breakdown {
	b := make(Breakdown, len(values))
	for k, v := range values {
		b[k] = Float(v)
	}
	return b
}

// Empty returns a breakdown with every attribute id mapped to 0.
func Empty(ids []string) Breakdown {
	b := make(Breakdown, len(ids))
	for _, id := range ids {
		b[id] = Float(0)
	}
	return b
}

// Value returns the numeric value for id, treating missing and null as 0.
func (b Breakdown) Value(id string) float64 {
	if v, ok := b[id]; ok && v != nil {
		return *v
	}
	return 0
}

// Has reports whether id is present with a non-null value.
func (b Breakdown) Has(id string) bool {
	v, ok := b[id]
	return ok && v != nil
}

// Clone returns a deep copy of b. A nil breakdown clones to an empty one.
func (b Breakdown) Clone() Breakdown {
	out := make(Breakdown, len(b))
	for k, v := range b {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = Float(*v)
	}
	return out
}

// Keys returns the attribute ids of b in lexical order.
func (b Breakdown) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Add returns the per-key sum of a and b over the union of their keys.
func Add(a, b Breakdown) Breakdown {
	out := make(Breakdown, len(a)+len(b))
	for _, k := range union(a, b) {
		out[k] = Float(a.Value(k) + b.Value(k))
	}
	return out
}

// Diff returns next[k] - prev[k] for every key in the union of next and prev.
func Diff(next, prev Breakdown) Breakdown {
	out := make(Breakdown, len(next)+len(prev))
	for _, k := range union(next, prev) {
		out[k] = Float(next.Value(k) - prev.Value(k))
	}
	return out
}

// Sum folds Add over all breakdowns.
func Sum(bs ...Breakdown) Breakdown {
	out := Breakdown{}
	for _, b := range bs {
		out = Add(out, b)
	}
	return out
}

// Merge overlays the keys present in overlay onto a copy of base.
// A nil value in overlay is copied as nil.
func Merge(base, overlay Breakdown) Breakdown {
	out := base.Clone()
	for k, v := range overlay {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = Float(*v)
	}
	return out
}

// Equal reports whether a and b hold the same numeric value for every key in
// their union, with missing and null counted as 0.
func Equal(a, b Breakdown) bool {
	for _, k := range union(a, b) {
		if a.Value(k) != b.Value(k) {
			return false
		}
	}
	return true
}

// union returns the sorted set of keys present in a or b.
func union(a, b Breakdown) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
