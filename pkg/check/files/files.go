// Package files implements checks against the project tree: path and file
// presence, alternatives, unwanted files and host.json properties.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// MaxGlobExamples is how many matching files a glob failure lists.
const MaxGlobExamples = 5

// Register adds the project file handlers to reg.
func Register(reg *check.Registry) error {
	handlers := []struct {
		kind rule.Kind
		h    check.Handler
	}{
		{rule.KindPathExists, PathExists},
		{rule.KindFileExists, FileExists},
		{rule.KindAnyOfExists, AnyOfExists},
		{rule.KindFileGlobCheck, FileGlobCheck},
		{rule.KindHostJSONProperty, HostJSONProperty},
	}
	for _, e := range handlers {
		if err := reg.Register(e.kind, e.h); err != nil {
			return fmt.Errorf("files: %w", err)
		}
	}
	return nil
}

// PathExists passes when the target exists. The target "sys.executable"
// names the host interpreter; other absolute paths are checked as given and
// relative ones under the project root.
func PathExists(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	display, ok, err := stat(c.Target, t, func(os.FileInfo) bool { return true })
	if err != nil {
		return check.Result{}, err
	}
	return presence(r, display, ok), nil
}

// FileExists is PathExists restricted to regular files.
func FileExists(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	display, ok, err := stat(c.Target, t, func(fi os.FileInfo) bool { return fi.Mode().IsRegular() })
	if err != nil {
		return check.Result{}, err
	}
	return presence(r, display, ok), nil
}

// stat resolves target and reports whether it exists and satisfies want.
func stat(target string, t check.Target, want func(os.FileInfo) bool) (string, bool, error) {
	if target == host.ExecutableSentinel {
		exe := t.Host.Executable()
		if exe == "" {
			return "Python executable", false, nil
		}
		target = exe
	}

	if filepath.IsAbs(target) {
		fi, err := os.Stat(target)
		if err != nil {
			return target, false, nil
		}
		return target, want(fi), nil
	}

	fi, err := t.Project.Stat(target)
	switch {
	case err == nil:
		return t.Project.Abs(target), want(fi), nil
	case errors.Is(err, os.ErrPermission):
		return "", false, err
	}
	return t.Project.Abs(target), false, nil
}

func presence(r rule.Rule, display string, ok bool) check.Result {
	switch {
	case ok:
		return check.Pass("%s exists", display)
	case !r.Required():
		return check.Pass("%s is missing (optional)", display)
	}
	return check.Fail("%s is missing", display)
}

// AnyOfExists passes on the first satisfied alternative. An entry of the
// form "file.json:key.path" is looked up in that JSON file; any other entry
// is tried as an environment variable and then as a project path.
func AnyOfExists(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetsCondition](r)
	if err != nil {
		return check.Result{}, err
	}

	for _, entry := range c.Targets {
		if file, pointer, ok := splitConfigRef(entry); ok {
			if _, err := t.Project.LookupJSON(file, pointer); err == nil {
				return check.Pass("%s found in %s", pointer, file), nil
			}
			continue
		}
		if _, ok := t.Host.Getenv(entry); ok {
			return check.Pass("Environment variable %s is set", entry), nil
		}
		if ok, err := t.Project.Exists(entry); err == nil && ok {
			return check.Pass("%s exists", entry), nil
		}
	}
	return check.Fail("None of the targets found: %s", strings.Join(c.Targets, ", ")), nil
}

// splitConfigRef splits "local.settings.json:Values.X" into its file and
// pointer parts.
func splitConfigRef(entry string) (string, string, bool) {
	file, pointer, ok := strings.Cut(entry, ":")
	if !ok || !strings.HasSuffix(file, ".json") || pointer == "" {
		return "", "", false
	}
	return file, pointer, true
}

// FileGlobCheck fails when any file matches one of the patterns.
func FileGlobCheck(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.PatternsCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	matches, err := t.Project.Glob(ctx, c.Patterns)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return check.Result{}, ctxErr
		}
		return check.Result{}, check.Configf("%v", err)
	}
	if len(matches) == 0 {
		return check.Pass("No files matching %s found", strings.Join(c.Patterns, ", ")), nil
	}

	shown := matches
	if len(shown) > MaxGlobExamples {
		shown = shown[:MaxGlobExamples]
	}
	detail := fmt.Sprintf("Found %d unwanted file(s): %s", len(matches), strings.Join(shown, ", "))
	if extra := len(matches) - len(shown); extra > 0 {
		detail += fmt.Sprintf(" (and %d more)", extra)
	}
	return check.Fail("%s", detail), nil
}

// HostJSONProperty passes when the pointer resolves in host.json, or the
// configured file, and matches the expected value if one is given.
func HostJSONProperty(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.JSONPathCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	return LookupProperty(t.Project, c)
}

// LookupProperty evaluates a JSONPathCondition against the project. A
// missing file or key is a fail; an unparsable file is returned as an error.
func LookupProperty(p *project.Project, c *rule.JSONPathCondition) (check.Result, error) {
	file := c.File
	if file == "" {
		file = project.HostConfig
	}
	pointer := strings.Join(project.SplitPointer(c.JSONPath), ".")

	ok, err := p.IsFile(file)
	if err != nil {
		return check.Result{}, err
	}
	if !ok {
		return check.Fail("%s not found", file), nil
	}

	v, err := p.LookupJSON(file, c.JSONPath)
	if errors.Is(err, project.ErrKeyNotFound) {
		return check.Fail("%s not found in %s", pointer, file), nil
	}
	if err != nil {
		return check.Result{}, err
	}

	got := project.FormatValue(v)
	if c.Value == nil {
		return check.Pass("%s is set in %s", pointer, file), nil
	}
	if got != *c.Value {
		return check.Fail("%s is %s in %s, expected %s", pointer, got, file, *c.Value), nil
	}
	return check.Pass("%s is %s in %s", pointer, got, file), nil
}
