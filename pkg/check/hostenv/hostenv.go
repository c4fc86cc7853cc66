// Package hostenv implements checks against the host environment: tool
// versions, environment variables, executables and importable packages.
package hostenv

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// Register adds the host environment handlers to reg.
func Register(reg *check.Registry) error {
	handlers := []struct {
		kind rule.Kind
		h    check.Handler
	}{
		{rule.KindCompareVersion, CompareVersion},
		{rule.KindEnvVarExists, EnvVarExists},
		{rule.KindExecutableExists, ExecutableExists},
		{rule.KindPackageInstalled, PackageInstalled},
	}
	for _, e := range handlers {
		if err := reg.Register(e.kind, e.h); err != nil {
			return fmt.Errorf("hostenv: %w", err)
		}
	}
	return nil
}

var targetLabels = map[string]string{
	host.TargetPython:        "Python",
	host.TargetFuncCoreTools: "Azure Functions Core Tools",
}

var operators = map[string]func(current, expected *semver.Version) bool{
	">=": func(c, e *semver.Version) bool { return c.Compare(e) >= 0 },
	"<=": func(c, e *semver.Version) bool { return c.Compare(e) <= 0 },
	"==": func(c, e *semver.Version) bool { return c.Compare(e) == 0 },
	">":  func(c, e *semver.Version) bool { return c.Compare(e) > 0 },
	"<":  func(c, e *semver.Version) bool { return c.Compare(e) < 0 },
}

// CompareVersion compares the version of a symbolic target with the
// condition's operator and value.
func CompareVersion(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.VersionCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	if !host.KnownTarget(c.Target) {
		return check.Result{}, check.Configf("unknown target %q", c.Target)
	}
	cmp, ok := operators[c.Operator]
	if !ok {
		return check.Fail("Unsupported operator: %s", c.Operator), nil
	}
	expected, err := semver.NewVersion(c.Value)
	if err != nil {
		return check.Result{}, check.Configf("invalid version %q: %v", c.Value, err)
	}

	label := targetLabels[c.Target]
	raw, err := t.Host.Version(ctx, c.Target)
	switch {
	case err == nil:
	case errors.Is(err, host.ErrNotInstalled):
		return check.Fail("%s is not installed, expected %s%s", label, c.Operator, c.Value), nil
	case errors.Is(err, host.ErrTimeout):
		return check.Fail("%s version check timed out", label), nil
	case errors.Is(err, host.ErrNoVersion):
		return check.Fail("Could not parse %s version", label), nil
	default:
		return check.Result{}, err
	}

	current, err := semver.NewVersion(raw)
	if err != nil {
		return check.Fail("Could not parse %s version %q", label, raw), nil
	}
	res := check.Result{
		Status: check.StatusFail,
		Detail: fmt.Sprintf("%s version is %s, expected %s%s", label, raw, c.Operator, c.Value),
	}
	if cmp(current, expected) {
		res.Status = check.StatusPass
	}
	return res, nil
}

// EnvVarExists passes when the variable is set, even to an empty string.
func EnvVarExists(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	_, ok := t.Host.Getenv(c.Target)
	return check.PassIf(ok, c.Target+" is set", c.Target+" is not set"), nil
}

// ExecutableExists passes when the target resolves on PATH.
func ExecutableExists(_ context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	path, err := t.Host.LookPath(c.Target)
	if err != nil {
		return check.Fail("%s not found in PATH", c.Target), nil
	}
	return check.Pass("%s found at %s", c.Target, path), nil
}

// PackageInstalled passes when the host interpreter can import the target.
func PackageInstalled(ctx context.Context, r rule.Rule, t check.Target) (check.Result, error) {
	c, err := rule.ConditionAs[*rule.TargetCondition](r)
	if err != nil {
		return check.Result{}, err
	}
	err = t.Host.Import(ctx, c.Target)
	if err == nil {
		return check.Pass("%s is installed", c.Target), nil
	}
	var ie *host.ImportError
	if errors.As(err, &ie) {
		if ie.Message == "" {
			return check.Fail("%s is not installed", c.Target), nil
		}
		return check.Fail("%s is not installed: %s", c.Target, ie.Message), nil
	}
	return check.Result{}, err
}
