package doctor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// OptionalSuffix is appended to the value of an optional rule that did not pass.
const OptionalSuffix = " (optional)"

// Item is the displayable outcome of one rule.
type Item struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Value    string        `json:"value"`
	Status   check.Status  `json:"status"`
	Required bool          `json:"required"`
	Severity rule.Severity `json:"severity,omitempty"`
	Hint     string        `json:"hint,omitempty"`
	HintURL  string        `json:"hint_url,omitempty"`
}

// Blocking reports whether the item is a failure that should fail the run:
// a required rule whose severity is error or unset.
func (i Item) Blocking() bool {
	return i.Status == check.StatusFail && i.Required && i.Severity.Blocking()
}

// SectionResult groups the items of one rule section. Status is fail when
// any item did not pass; optional items always pass after normalization.
type SectionResult struct {
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Status   check.Status `json:"status"`
	Items    []Item       `json:"items"`
}

// Summary counts items by display status.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

var titler = cases.Title(language.English)

// SectionTitle turns a section key such as "project_structure" into
// "Project Structure".
func SectionTitle(key string) string {
	if key == "" {
		return "General"
	}
	return titler.String(strings.ReplaceAll(key, "_", " "))
}

// NewItem normalizes a raw handler result for display. Errors display as
// failures. An optional rule that did not pass is downgraded to a pass with
// OptionalSuffix appended to its value.
func NewItem(r rule.Rule, res check.Result) Item {
	status := res.Status
	switch status {
	case check.StatusPass, check.StatusWarn, check.StatusFail:
	default:
		status = check.StatusFail
	}

	value := res.Detail
	if !r.Required() && status != check.StatusPass {
		value += OptionalSuffix
		status = check.StatusPass
	}
	return Item{
		ID:       r.ID,
		Label:    r.DisplayLabel(),
		Value:    value,
		Status:   status,
		Required: r.Required(),
		Severity: r.Severity,
		Hint:     r.Hint,
		HintURL:  r.HintURL,
	}
}

// Aggregate groups rules and their results into sections. Sections appear
// in the order their first rule appears; items keep rule order.
func Aggregate(rs []rule.Rule, results []check.Result) []SectionResult {
	var sections []SectionResult
	index := make(map[string]int)

	for i, r := range rs {
		n, ok := index[r.Section]
		if !ok {
			n = len(sections)
			index[r.Section] = n
			sections = append(sections, SectionResult{
				Title:    SectionTitle(r.Section),
				Category: r.Section,
				Status:   check.StatusPass,
				Items:    []Item{},
			})
		}

		item := NewItem(r, results[i])
		sec := &sections[n]
		sec.Items = append(sec.Items, item)
		if item.Required && item.Status != check.StatusPass {
			sec.Status = check.StatusFail
		}
	}
	return sections
}

// Summarize counts the items of all sections.
func Summarize(sections []SectionResult) Summary {
	var s Summary
	for _, sec := range sections {
		for _, item := range sec.Items {
			s.Total++
			switch item.Status {
			case check.StatusPass:
				s.Passed++
			case check.StatusWarn:
				s.Warned++
			default:
				s.Failed++
			}
		}
	}
	return s
}

// Failed reports whether any item blocks the run.
func Failed(sections []SectionResult) bool {
	for _, sec := range sections {
		for _, item := range sec.Items {
			if item.Blocking() {
				return true
			}
		}
	}
	return false
}
