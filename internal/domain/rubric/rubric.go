// Package rubric describes per-contest scoring rubrics and validates score
// breakdowns against them.
package rubric

import (
	"fmt"

	"github.com/okian/scoreline/internal/domain/breakdown"
)

// Default attribute bounds applied when an attribute omits min or max.
const (
	DefaultMin = 0
	DefaultMax = 10
)

// AttributeConfig is one scorable attribute of a rubric.
type AttributeConfig struct {
	ID          string   `json:"id" koanf:"id"`
	Label       string   `json:"label" koanf:"label"`
	Description string   `json:"description,omitempty" koanf:"description"`
	Min         *float64 `json:"min,omitempty" koanf:"min"`
	Max         *float64 `json:"max,omitempty" koanf:"max"`
}

// Bounds returns the inclusive range for the attribute, applying defaults.
func (a AttributeConfig) Bounds() (lo, hi float64) {
	lo, hi = DefaultMin, DefaultMax
	if a.Min != nil {
		lo = *a.Min
	}
	if a.Max != nil {
		hi = *a.Max
	}
	return lo, hi
}

// ContestConfig is the contest-level configuration the score engine consumes.
type ContestConfig struct {
	Topic            string            `json:"topic" koanf:"topic"`
	Attributes       []AttributeConfig `json:"attributes" koanf:"attributes"`
	EntryLabel       string            `json:"entryLabel,omitempty" koanf:"entry_label"`
	EntryLabelPlural string            `json:"entryLabelPlural,omitempty" koanf:"entry_label_plural"`
}

// IDs returns the attribute ids in rubric order.
func (c ContestConfig) IDs() []string {
	ids := make([]string, len(c.Attributes))
	for i, a := range c.Attributes {
		ids[i] = a.ID
	}
	return ids
}

// Empty returns a zeroed breakdown over the rubric's attributes.
func (c ContestConfig) Empty() breakdown.Breakdown {
	return breakdown.Empty(c.IDs())
}

// Check reports configuration mistakes: no attributes, blank or duplicate
// ids, and inverted ranges.
func (c ContestConfig) Check() error {
	if len(c.Attributes) == 0 {
		return fmt.Errorf("%w: no attributes", ErrInvalidRubric)
	}
	seen := make(map[string]struct{}, len(c.Attributes))
	for i, a := range c.Attributes {
		if a.ID == "" {
			return fmt.Errorf("%w: attribute %d has an empty id", ErrInvalidRubric, i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: duplicate attribute id %q", ErrInvalidRubric, a.ID)
		}
		seen[a.ID] = struct{}{}
		if lo, hi := a.Bounds(); lo > hi {
			return fmt.Errorf("%w: attribute %q has min %v above max %v", ErrInvalidRubric, a.ID, lo, hi)
		}
	}
	return nil
}

// Default returns the system-wide fallback rubric used when a contest has no
// explicit configuration.
func Default() ContestConfig {
	return ContestConfig{
		Topic: "General",
		Attributes: []AttributeConfig{
			{ID: "aroma", Label: "Aroma"},
			{ID: "appearance", Label: "Appearance"},
			{ID: "flavor", Label: "Flavor"},
			{ID: "overall", Label: "Overall"},
		},
		EntryLabel:       "Entry",
		EntryLabelPlural: "Entries",
	}
}
