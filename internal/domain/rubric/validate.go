package rubric

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/okian/scoreline/internal/domain/breakdown"
)

// Validate checks b against the rubric attributes. Attributes listed in na are
// exempt from scoring and must be absent or null. Errors come back in rubric
// order, followed by unknown keys in lexical order.
func Validate(b breakdown.Breakdown, attrs []AttributeConfig, na []string) Errors {
	if b == nil {
		return Errors{{Rule: RuleNotAMapping, Message: "score breakdown must be a mapping of attribute id to value"}}
	}

	exempt := make(map[string]struct{}, len(na))
	for _, id := range na {
		exempt[id] = struct{}{}
	}

	var errs Errors
	known := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		known[a.ID] = struct{}{}
		v, present := b[a.ID]

		if _, skip := exempt[a.ID]; skip {
			if present && v != nil {
				errs = append(errs, ValidationError{
					Attribute: a.ID,
					Rule:      RuleNotApplicable,
					Message:   fmt.Sprintf("%s: cannot score a section marked N/A", a.ID),
				})
			}
			continue
		}

		switch {
		case !present:
			errs = append(errs, ValidationError{
				Attribute: a.ID,
				Rule:      RuleRequired,
				Message:   fmt.Sprintf("%s: score is required", a.ID),
			})
		case v == nil || math.IsNaN(*v) || math.IsInf(*v, 0):
			errs = append(errs, ValidationError{
				Attribute: a.ID,
				Rule:      RuleNotANumber,
				Message:   fmt.Sprintf("%s: score must be a finite number", a.ID),
			})
		default:
			lo, hi := a.Bounds()
			if *v < lo || *v > hi {
				errs = append(errs, ValidationError{
					Attribute: a.ID,
					Rule:      RuleOutOfRange,
					Message:   fmt.Sprintf("%s: score %v must be between %v and %v", a.ID, *v, lo, hi),
				})
			}
		}
	}

	for _, k := range b.Keys() {
		if _, ok := known[k]; !ok {
			errs = append(errs, ValidationError{
				Attribute: k,
				Rule:      RuleUnknown,
				Message:   fmt.Sprintf("%s: unknown attribute", k),
			})
		}
	}
	return errs
}

// ValidateRaw accepts loosely typed input, typically decoded JSON, converts it
// to a Breakdown and validates it. Non-numeric values are reported as
// not-a-number on their attribute.
func ValidateRaw(raw any, attrs []AttributeConfig, na []string) (breakdown.Breakdown, Errors) {
	b, ok := toBreakdown(raw)
	if !ok {
		return nil, Errors{{Rule: RuleNotAMapping, Message: "score breakdown must be a mapping of attribute id to value"}}
	}
	return b, Validate(b, attrs, na)
}

func toBreakdown(raw any) (breakdown.Breakdown, bool) {
	switch m := raw.(type) {
	case breakdown.Breakdown:
		return m, m != nil
	case map[string]*float64:
		return breakdown.Breakdown(m), m != nil
	case map[string]float64:
		if m == nil {
			return nil, false
		}
		return breakdown.Of(m), true
	case map[string]any:
		if m == nil {
			return nil, false
		}
		b := make(breakdown.Breakdown, len(m))
		for k, v := range m {
			if v == nil {
				b[k] = nil
				continue
			}
			b[k] = breakdown.Float(toNumber(v))
		}
		return b, true
	default:
		return nil, false
	}
}

// toNumber converts v to float64, yielding NaN for non-numeric values.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// sortedCopy returns ids sorted, without mutating the input.
func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// NormalizeNA drops duplicate and unknown ids from an N/A set and returns it
// sorted, so stored records compare stably.
func NormalizeNA(na []string, attrs []AttributeConfig) []string {
	if len(na) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		known[a.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(na))
	out := make([]string, 0, len(na))
	for _, id := range na {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return sortedCopy(out)
}
