// Package bindings validates trigger bindings declared in function.json
// files of legacy-model projects.
package bindings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

const (
	// DefaultTriggerType is validated by binding_validation rules that do
	// not name one.
	DefaultTriggerType = "httpTrigger"

	// DefaultScheduleTrigger is validated by cron_validation rules that do
	// not name one.
	DefaultScheduleTrigger = "timerTrigger"

	// MaxViolations is how many problems a failing result lists.
	MaxViolations = 5
)

// DefaultRequiredFields must be non-empty on every binding of the trigger type.
var DefaultRequiredFields = []string{"authLevel"}

// Register adds the binding handlers to reg.
func Register(reg *check.Registry) error {
	if err := reg.Register(rule.KindBindingValidation, BindingValidation); err != nil {
		return fmt.Errorf("bindings: %w", err)
	}
	if err := reg.Register(rule.KindCronValidation, CronValidation); err != nil {
		return fmt.Errorf("bindings: %w", err)
	}
	return nil
}

// Binding is one entry of a function.json "bindings" array.
type Binding map[string]any

// Type returns the binding's "type" field.
func (b Binding) Type() string {
	s, _ := b["type"].(string)
	return s
}

// String returns a field as a trimmed string, or "" when absent or not a string.
func (b Binding) String(field string) string {
	s, _ := b[field].(string)
	return strings.TrimSpace(s)
}

type functionConfig struct {
	Bindings []Binding `json:"bindings"`
}

// functionFile is a parsed function.json, or the reason it could not be parsed.
type functionFile struct {
	path     string
	bindings []Binding
	err      error
}

func loadFunctionFiles(ctx context.Context, p *project.Project) ([]functionFile, error) {
	paths, err := p.FindFiles(ctx, project.FunctionConfig)
	if err != nil {
		return nil, err
	}
	out := make([]functionFile, 0, len(paths))
	for _, rel := range paths {
		ff := functionFile{path: rel}
		data, err := p.ReadFile(rel)
		if err != nil {
			ff.err = err
		} else {
			var cfg functionConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				ff.err = err
			}
			ff.bindings = cfg.Bindings
		}
		out = append(out, ff)
	}
	return out, nil
}

// BindingValidation requires every binding of the trigger type to carry the
// required fields. An unparsable function.json is a violation.
func BindingValidation(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.BindingCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	trigger := c.TriggerType
	if trigger == "" {
		trigger = DefaultTriggerType
	}
	required := c.RequiredFields
	if len(required) == 0 {
		required = DefaultRequiredFields
	}

	functions, err := loadFunctionFiles(ctx, t.Project)
	if err != nil {
		return check.Result{}, err
	}
	if len(functions) == 0 {
		return check.Pass("No function.json files found, check skipped"), nil
	}

	var violations []string
	checked := 0
	for _, fn := range functions {
		if fn.err != nil {
			violations = append(violations, fmt.Sprintf("%s: cannot be parsed", fn.path))
			continue
		}
		for _, b := range fn.bindings {
			if !strings.EqualFold(b.Type(), trigger) {
				continue
			}
			checked++
			for _, field := range required {
				if b.String(field) == "" && !hasValue(b, field) {
					violations = append(violations, fmt.Sprintf("%s: %s binding missing %s", fn.path, trigger, field))
				}
			}
		}
	}
	if len(violations) > 0 {
		return check.Fail("%s", summarize(violations)), nil
	}
	return check.Pass("%d %s binding(s) valid in %d function.json file(s)", checked, trigger, len(functions)), nil
}

// hasValue reports whether a non-string field is present and non-null.
func hasValue(b Binding, field string) bool {
	v, ok := b[field]
	if !ok || v == nil {
		return false
	}
	_, isString := v.(string)
	return !isString
}

// CronValidation requires schedule-triggered bindings to carry a cron
// expression of five or six fields. App setting references such as
// "%ScheduleSetting%" cannot be resolved locally and are skipped.
func CronValidation(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.CronCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	trigger := c.TriggerType
	if trigger == "" {
		trigger = DefaultScheduleTrigger
	}

	functions, err := loadFunctionFiles(ctx, t.Project)
	if err != nil {
		return check.Result{}, err
	}

	var violations []string
	checked := 0
	for _, fn := range functions {
		if fn.err != nil {
			continue
		}
		for _, b := range fn.bindings {
			if !strings.EqualFold(b.Type(), trigger) {
				continue
			}
			schedule := b.String("schedule")
			switch {
			case schedule == "":
				violations = append(violations, fmt.Sprintf("%s: %s binding has no schedule", fn.path, trigger))
			case IsSettingReference(schedule):
			case !ValidSchedule(schedule):
				violations = append(violations, fmt.Sprintf("%s: invalid schedule %q (expected 5 or 6 fields)", fn.path, schedule))
			default:
				checked++
			}
		}
	}
	if len(violations) > 0 {
		return check.Fail("%s", summarize(violations)), nil
	}
	if checked == 0 {
		return check.Pass("No %s schedules to validate", trigger), nil
	}
	return check.Pass("%d %s schedule(s) valid", checked, trigger), nil
}

// IsSettingReference reports whether s is an app setting placeholder.
func IsSettingReference(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "%") && strings.HasSuffix(s, "%")
}

// ValidSchedule reports whether expr has the five or six space-separated
// fields of an NCRONTAB expression.
func ValidSchedule(expr string) bool {
	n := len(strings.Fields(expr))
	return n == 5 || n == 6
}

func summarize(violations []string) string {
	shown := violations
	if len(shown) > MaxViolations {
		shown = shown[:MaxViolations]
	}
	s := strings.Join(shown, "; ")
	if extra := len(violations) - len(shown); extra > 0 {
		s += fmt.Sprintf(" (and %d more)", extra)
	}
	return s
}
