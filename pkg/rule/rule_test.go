package rule

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUnmarshal_Defaults(t *testing.T) {
	var r Rule
	if err := json.Unmarshal([]byte(`{"id":"check_host_json","type":"file_exists","section":"configuration","condition":{"target":"host.json"}}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Label != "check_host_json" {
		t.Errorf("expected label to default to id, got %q", r.Label)
	}
	if !r.Required() {
		t.Error("expected rule to be required by default")
	}
	if r.Order() != DefaultCheckOrder {
		t.Errorf("expected order %d, got %d", DefaultCheckOrder, r.Order())
	}
	cond, ok := r.Condition.(*TargetCondition)
	if !ok {
		t.Fatalf("expected *TargetCondition, got %T", r.Condition)
	}
	if cond.Target != "host.json" {
		t.Errorf("expected target 'host.json', got %q", cond.Target)
	}
	if r.Err() != nil {
		t.Errorf("expected no decode error, got %v", r.Err())
	}
}

func TestUnmarshal_ExplicitFields(t *testing.T) {
	var r Rule
	data := `{
		"id": "check_python_version",
		"type": "compare_version",
		"label": "Python version",
		"section": "python_env",
		"required": false,
		"severity": "warning",
		"check_order": 3,
		"hint": "Upgrade Python",
		"hint_url": "https://example.com",
		"condition": {"target": "python", "operator": ">=", "value": "3.9"}
	}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Required() {
		t.Error("expected optional rule")
	}
	if r.Order() != 3 {
		t.Errorf("expected order 3, got %d", r.Order())
	}
	if r.Severity != SeverityWarning {
		t.Errorf("expected severity warning, got %q", r.Severity)
	}
	if r.HintURL != "https://example.com" {
		t.Errorf("expected hint_url passthrough, got %q", r.HintURL)
	}
	cond, err := ConditionAs[*VersionCondition](r)
	if err != nil {
		t.Fatalf("ConditionAs failed: %v", err)
	}
	if cond.Operator != ">=" || cond.Value != "3.9" || cond.Target != "python" {
		t.Errorf("unexpected condition %+v", cond)
	}
}

func TestUnmarshal_BadConditionIsRecorded(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{"id":"x","type":"file_glob_check","condition":{"patterns":"*.pyc"}}`), &r)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if !errors.Is(r.Err(), ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition, got %v", r.Err())
	}
}

func TestUnmarshal_BadTopLevelFieldIsRecorded(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{"id":"x","type":"file_exists","label":"X","required":"yes"}`), &r)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if !errors.Is(r.Err(), ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", r.Err())
	}
	if r.ID != "x" || r.Type != KindFileExists || r.Label != "X" {
		t.Errorf("expected identifying fields to be salvaged, got %+v", r)
	}
}

func TestUnmarshal_NotAnObject(t *testing.T) {
	var r Rule
	if err := json.Unmarshal([]byte(`"nope"`), &r); err == nil {
		t.Error("expected error for non-object rule")
	}
}

func TestUnmarshal_UnknownKind(t *testing.T) {
	var r Rule
	if err := json.Unmarshal([]byte(`{"id":"x","type":"unknown_type","condition":{"target":"anything"}}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Condition != nil {
		t.Errorf("expected nil condition for unknown kind, got %T", r.Condition)
	}
	if r.Err() != nil {
		t.Errorf("expected no decode error for unknown kind, got %v", r.Err())
	}
}

func TestValidate_MissingFields(t *testing.T) {
	c := &VersionCondition{Target: "python"}
	err := c.Validate()
	var mf *MissingFieldsError
	if !errors.As(err, &mf) {
		t.Fatalf("expected *MissingFieldsError, got %v", err)
	}
	if len(mf.Fields) != 2 || mf.Fields[0] != "operator" || mf.Fields[1] != "value" {
		t.Errorf("expected [operator value], got %v", mf.Fields)
	}
}

func TestValidate_OptionalVariants(t *testing.T) {
	for _, c := range []Condition{&CallableCondition{}, &BindingCondition{}, &CronCondition{}} {
		if err := c.Validate(); err != nil {
			t.Errorf("%T: expected no error, got %v", c, err)
		}
	}
}

func TestKinds_AllHaveConditions(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Known() {
			t.Errorf("kind %q should be known", k)
		}
		if newCondition(k) == nil {
			t.Errorf("kind %q has no condition variant", k)
		}
	}
	if Kind("nope").Known() {
		t.Error("unexpected known kind 'nope'")
	}
}

func TestConditionAs_Mismatch(t *testing.T) {
	r := Rule{Type: KindFileExists, Condition: &KeywordCondition{Keyword: "x"}}
	if _, err := ConditionAs[*TargetCondition](r); !errors.Is(err, ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition, got %v", err)
	}
}

func TestConditionAs_NilUsesEmptyVariant(t *testing.T) {
	r := Rule{Type: KindBindingValidation}
	c, err := ConditionAs[*BindingCondition](r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TriggerType != "" {
		t.Errorf("expected empty variant, got %+v", c)
	}
}

func TestSeverity_Blocking(t *testing.T) {
	if !Severity("").Blocking() || !SeverityError.Blocking() {
		t.Error("expected unset and error severities to block")
	}
	if SeverityWarning.Blocking() || SeverityInfo.Blocking() {
		t.Error("expected warning and info severities not to block")
	}
}
