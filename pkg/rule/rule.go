// Package rule defines the declarative diagnostic rule schema.
//
// A Rule names a check kind, the section it is reported under, whether a
// failure is blocking, and a condition payload whose shape is determined
// entirely by the kind. Conditions are decoded into typed variants when a
// rule document is read; a payload that cannot be decoded is kept on the
// rule and surfaces as a configuration failure when the rule is dispatched,
// so one malformed rule never invalidates the whole document.
package rule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultCheckOrder is the execution order of rules that do not declare one.
const DefaultCheckOrder = 999

// Kind identifies a check type and selects its handler.
type Kind string

const (
	KindCompareVersion     Kind = "compare_version"
	KindEnvVarExists       Kind = "env_var_exists"
	KindPathExists         Kind = "path_exists"
	KindFileExists         Kind = "file_exists"
	KindPackageInstalled   Kind = "package_installed"
	KindSourceCodeContains Kind = "source_code_contains"
	KindConditionalExists  Kind = "conditional_exists"
	KindCallableDetection  Kind = "callable_detection"
	KindExecutableExists   Kind = "executable_exists"
	KindAnyOfExists        Kind = "any_of_exists"
	KindFileGlobCheck      Kind = "file_glob_check"
	KindHostJSONProperty   Kind = "host_json_property"
	KindBindingValidation  Kind = "binding_validation"
	KindCronValidation     Kind = "cron_validation"
)

var kinds = []Kind{
	KindCompareVersion,
	KindEnvVarExists,
	KindPathExists,
	KindFileExists,
	KindPackageInstalled,
	KindSourceCodeContains,
	KindConditionalExists,
	KindCallableDetection,
	KindExecutableExists,
	KindAnyOfExists,
	KindFileGlobCheck,
	KindHostJSONProperty,
	KindBindingValidation,
	KindCronValidation,
}

// Kinds returns every check kind known to the schema.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Known reports whether k is one of the schema's check kinds.
func (k Kind) Known() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Severity is display metadata; it never changes pass/fail evaluation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Blocking reports whether a failure at this severity should affect the
// process exit code. An unset severity is treated as an error.
func (s Severity) Blocking() bool {
	return s == "" || s == SeverityError
}

var (
	// ErrInvalidRule marks a rule whose top-level fields could not be decoded.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidCondition marks a condition payload that does not fit its kind.
	ErrInvalidCondition = errors.New("invalid condition")
)

// Rule is a single declarative check definition.
type Rule struct {
	ID          string
	Type        Kind
	Label       string
	Description string
	Section     string

	// Optional is the inverse of the document's "required" field, so that
	// the zero value of Rule is a required rule.
	Optional bool

	Severity  Severity
	Condition Condition
	Hint      string
	HintURL   string

	// CheckOrder is nil when the document did not declare one.
	CheckOrder *int

	err error
}

// Required reports whether a failure of this rule fails its section.
func (r Rule) Required() bool {
	return !r.Optional
}

// Order returns the rule's execution order, DefaultCheckOrder when unset.
func (r Rule) Order() int {
	if r.CheckOrder == nil {
		return DefaultCheckOrder
	}
	return *r.CheckOrder
}

// DisplayLabel returns the label, falling back to the rule ID.
func (r Rule) DisplayLabel() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

// Err returns the decode error recorded for this rule, if any.
func (r Rule) Err() error {
	return r.err
}

// WithErr returns a copy of r carrying a decode error.
func (r Rule) WithErr(err error) Rule {
	r.err = err
	return r
}

// document is the wire shape of a rule.
type document struct {
	ID          string          `json:"id"`
	Type        Kind            `json:"type"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Section     string          `json:"section"`
	Required    *bool           `json:"required"`
	Severity    Severity        `json:"severity"`
	Condition   json.RawMessage `json:"condition"`
	Hint        string          `json:"hint"`
	HintURL     string          `json:"hint_url"`
	CheckOrder  *int            `json:"check_order"`
}

// UnmarshalJSON decodes a rule. It only returns an error when data is not a
// JSON object; field-level problems are recorded on the rule instead.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return r.decodeLenient(data, err)
	}

	*r = Rule{
		ID:          doc.ID,
		Type:        doc.Type,
		Label:       doc.Label,
		Description: doc.Description,
		Section:     doc.Section,
		Severity:    doc.Severity,
		Hint:        doc.Hint,
		HintURL:     doc.HintURL,
		CheckOrder:  doc.CheckOrder,
	}
	if doc.Required != nil {
		r.Optional = !*doc.Required
	}
	if r.Label == "" {
		r.Label = r.ID
	}

	cond, err := DecodeCondition(doc.Type, doc.Condition)
	if err != nil {
		r.err = err
		return nil
	}
	r.Condition = cond
	return nil
}

// decodeLenient salvages identifying fields from an object whose typed
// decode failed, so the rule can still be reported under its own label.
func (r *Rule) decodeLenient(data []byte, cause error) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("rule: expected an object: %w", err)
	}

	str := func(key string) string {
		var s string
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}

	*r = Rule{
		ID:      str("id"),
		Type:    Kind(str("type")),
		Label:   str("label"),
		Section: str("section"),
		Hint:    str("hint"),
		HintURL: str("hint_url"),
		err:     fmt.Errorf("%w: %v", ErrInvalidRule, cause),
	}
	if r.Label == "" {
		r.Label = r.ID
	}
	return nil
}

// isNull reports whether a raw JSON value is absent or null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
