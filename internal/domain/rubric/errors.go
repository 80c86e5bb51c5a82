package rubric

import (
	"errors"
	"strings"
)

// Sentinel kinds for rubric errors.
var (
	ErrInvalidBreakdown = errors.New("invalid score breakdown")
	ErrInvalidRubric    = errors.New("invalid rubric")
)

// Rule names the validation rule an attribute broke.
type Rule string

// Validation rules, in the order they are checked.
const (
	RuleNotAMapping   Rule = "not_a_mapping"
	RuleRequired      Rule = "required"
	RuleNotANumber    Rule = "not_a_number"
	RuleOutOfRange    Rule = "out_of_range"
	RuleNotApplicable Rule = "not_applicable"
	RuleUnknown       Rule = "unknown_attribute"
)

// ValidationError describes one rubric violation.
type ValidationError struct {
	Attribute string `json:"attribute,omitempty"`
	Rule      Rule   `json:"rule"`
	Message   string `json:"message"`
}

func (e ValidationError) Error() string { return e.Message }

// Errors is the full list of violations for one breakdown. A nil or empty
// Errors means the breakdown is valid.
type Errors []ValidationError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return ErrInvalidBreakdown.Error() + ": " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidBreakdown) match.
func (es Errors) Is(target error) bool { return target == ErrInvalidBreakdown }

// Err returns es as an error, or nil when there are no violations.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
