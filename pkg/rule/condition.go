package rule

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is the kind-specific parameter payload of a rule.
type Condition interface {
	// Validate reports missing required fields as a *MissingFieldsError.
	Validate() error
}

// MissingFieldsError lists required condition fields that are absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing condition fields: " + strings.Join(e.Fields, ", ")
}

// missing builds a *MissingFieldsError from (name, present) pairs, or nil
// when every field is present.
func missing(pairs ...any) error {
	var fields []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if present, _ := pairs[i+1].(bool); !present {
			fields = append(fields, pairs[i].(string))
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &MissingFieldsError{Fields: fields}
}

// VersionCondition compares a symbolic target's version against Value.
type VersionCondition struct {
	Target   string `json:"target"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func (c *VersionCondition) Validate() error {
	return missing("target", c.Target != "", "operator", c.Operator != "", "value", c.Value != "")
}

// TargetCondition names a single target: a variable, path, module or executable.
type TargetCondition struct {
	Target string `json:"target"`
}

func (c *TargetCondition) Validate() error {
	return missing("target", c.Target != "")
}

// KeywordCondition is an exact substring to look for in source files.
type KeywordCondition struct {
	Keyword string `json:"keyword"`
}

func (c *KeywordCondition) Validate() error {
	return missing("keyword", c.Keyword != "")
}

// JSONPathCondition points into a JSON configuration file using a dotted
// path with an optional leading "$.".
type JSONPathCondition struct {
	JSONPath string `json:"jsonpath"`

	// File defaults to host.json when empty.
	File string `json:"file,omitempty"`

	// Value, when set, must equal the resolved value's string form.
	Value *string `json:"value,omitempty"`
}

func (c *JSONPathCondition) Validate() error {
	return missing("jsonpath", c.JSONPath != "")
}

// CallableCondition adds extra regular expressions to the built-in set used
// to detect an HTTP-callable application object.
type CallableCondition struct {
	Patterns []string `json:"patterns,omitempty"`
}

func (c *CallableCondition) Validate() error { return nil }

// TargetsCondition is a list of alternatives, any one of which satisfies the rule.
type TargetsCondition struct {
	Targets []string `json:"targets"`
}

func (c *TargetsCondition) Validate() error {
	return missing("targets", len(c.Targets) > 0)
}

// PatternsCondition is a list of glob patterns matched recursively.
type PatternsCondition struct {
	Patterns []string `json:"patterns"`
}

func (c *PatternsCondition) Validate() error {
	return missing("patterns", len(c.Patterns) > 0)
}

// BindingCondition selects a trigger type in function.json bindings and
// the fields each such binding must carry.
type BindingCondition struct {
	TriggerType    string   `json:"trigger_type,omitempty"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

func (c *BindingCondition) Validate() error { return nil }

// CronCondition selects the schedule-based trigger type to validate.
type CronCondition struct {
	TriggerType string `json:"trigger_type,omitempty"`
}

func (c *CronCondition) Validate() error { return nil }

// newCondition returns an empty condition variant for kind, or nil when the
// kind is unknown to the schema.
func newCondition(kind Kind) Condition {
	switch kind {
	case KindCompareVersion:
		return &VersionCondition{}
	case KindEnvVarExists, KindPathExists, KindFileExists, KindPackageInstalled, KindExecutableExists:
		return &TargetCondition{}
	case KindSourceCodeContains:
		return &KeywordCondition{}
	case KindConditionalExists, KindHostJSONProperty:
		return &JSONPathCondition{}
	case KindCallableDetection:
		return &CallableCondition{}
	case KindAnyOfExists:
		return &TargetsCondition{}
	case KindFileGlobCheck:
		return &PatternsCondition{}
	case KindBindingValidation:
		return &BindingCondition{}
	case KindCronValidation:
		return &CronCondition{}
	}
	return nil
}

// EmptyCondition returns the zero condition variant for kind, or nil when
// kind is unknown. Validating it reports the fields a rule without a
// condition block is missing.
func EmptyCondition(kind Kind) Condition {
	return newCondition(kind)
}

// DecodeCondition decodes raw into the condition variant for kind. Unknown
// kinds decode to a nil condition without error; the registry reports them.
func DecodeCondition(kind Kind, raw json.RawMessage) (Condition, error) {
	cond := newCondition(kind)
	if cond == nil {
		return nil, nil
	}
	if isNull(raw) {
		return cond, nil
	}
	if err := json.Unmarshal(raw, cond); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidCondition, kind, err)
	}
	return cond, nil
}

// ConditionAs returns the rule's condition as the variant T.
func ConditionAs[T Condition](r Rule) (T, error) {
	var zero T
	if r.Condition == nil {
		if c, ok := newCondition(r.Type).(T); ok {
			return c, nil
		}
		return zero, fmt.Errorf("%w: %s has no condition", ErrInvalidCondition, r.Type)
	}
	c, ok := r.Condition.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s does not accept %T", ErrInvalidCondition, r.Type, r.Condition)
	}
	return c, nil
}
