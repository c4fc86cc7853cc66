// Package source implements checks that scan project source text: keyword
// presence, Durable Functions configuration and HTTP-callable detection.
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/check/files"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// DurableKeywords indicate that a project uses Durable Functions.
var DurableKeywords = []string{
	"azure.durable_functions",
	"durable_functions",
	"DurableOrchestrationContext",
	"orchestration_trigger",
	"activity_trigger",
	"entity_trigger",
}

// CallablePatterns match the construction of an ASGI or WSGI application.
var CallablePatterns = []string{
	`\bFastAPI\s*\(`,
	`\bFlask\s*\(`,
	`\bStarlette\s*\(`,
	`\bQuart\s*\(`,
	`\bget_asgi_application\s*\(`,
	`\bget_wsgi_application\s*\(`,
	`\bfunc\.AsgiFunctionApp\s*\(`,
	`\bfunc\.WsgiFunctionApp\s*\(`,
}

var builtinCallables = compile(CallablePatterns)

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Register adds the source scanning handlers to reg.
func Register(reg *check.Registry) error {
	handlers := []struct {
		kind rule.Kind
		h    check.Handler
	}{
		{rule.KindSourceCodeContains, SourceCodeContains},
		{rule.KindConditionalExists, ConditionalExists},
		{rule.KindCallableDetection, CallableDetection},
	}
	for _, e := range handlers {
		if err := reg.Register(e.kind, e.h); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	return nil
}

// Scan returns the first source file whose text satisfies match, or "" if
// none does. Files that cannot be read or decoded are logged and skipped.
func Scan(ctx context.Context, t check.Target, match func(text string) bool) (string, error) {
	paths, err := t.Project.SourceFiles(ctx)
	if err != nil {
		return "", err
	}
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := t.Project.ReadText(rel)
		if err != nil {
			if t.Logger != nil {
				t.Logger.WithFields(logrus.Fields{"file": rel}).Debugf("skipping source file: %v", err)
			}
			continue
		}
		if match(text) {
			return rel, nil
		}
	}
	return "", nil
}

// SourceCodeContains passes when any source file contains the keyword.
func SourceCodeContains(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.KeywordCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	found, err := Scan(ctx, t, func(text string) bool {
		return strings.Contains(text, c.Keyword)
	})
	if err != nil {
		return check.Result{}, err
	}
	if found == "" {
		return check.Fail("Keyword '%s' not found in source files", c.Keyword), nil
	}
	return check.Pass("Keyword '%s' found in %s", c.Keyword, found), nil
}

// ConditionalExists requires a host.json property only when the project
// uses Durable Functions; otherwise it passes as skipped.
func ConditionalExists(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.JSONPathCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	found, err := Scan(ctx, t, func(text string) bool {
		for _, kw := range DurableKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return check.Result{}, err
	}
	if found == "" {
		return check.Pass("Durable Functions not used, check skipped"), nil
	}

	res, err := files.LookupProperty(t.Project, c)
	if err != nil {
		if errors.Is(err, project.ErrInvalidJSON) {
			return check.Fail("Durable Functions detected in %s but host.json could not be parsed", found), nil
		}
		return check.Result{}, err
	}
	if !res.Passed() {
		res.Detail = fmt.Sprintf("Durable Functions detected in %s: %s", found, res.Detail)
	}
	return res, nil
}

// CallableDetection passes when any source file constructs an ASGI or WSGI
// application, using the built-in patterns plus any from the condition.
func CallableDetection(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.CallableCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	patterns := builtinCallables
	for _, p := range c.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return check.Result{}, check.Configf("invalid pattern %q: %v", p, err)
		}
		patterns = append(patterns[:len(patterns):len(patterns)], re)
	}

	found, err := Scan(ctx, t, func(text string) bool {
		for _, re := range patterns {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return check.Result{}, err
	}
	if found == "" {
		return check.Fail("No ASGI/WSGI callable found in source files"), nil
	}
	return check.Pass("ASGI/WSGI callable found in %s", found), nil
}
