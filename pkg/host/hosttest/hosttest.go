// Package hosttest provides an in-memory host.Host for tests.
package hosttest

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/kylerisse/funcdoctor/pkg/host"
)

// Fake is a host.Host whose answers are fixed by its fields. The zero value
// is a machine with nothing installed and an empty environment.
type Fake struct {
	Env map[string]string

	// Paths maps executable names to their resolved location.
	Paths map[string]string

	// Python is returned by Executable.
	Python string

	// Versions maps symbolic targets to version strings.
	Versions map[string]string

	// VersionErrs forces Version to fail for a target.
	VersionErrs map[string]error

	// Modules lists importable modules.
	Modules map[string]bool

	// ImportErr, when set, is returned by every Import call.
	ImportErr error
}

var _ host.Host = (*Fake)(nil)

// Getenv implements host.Host.
func (f *Fake) Getenv(key string) (string, bool) {
	v, ok := f.Env[key]
	return v, ok
}

// LookPath implements host.Host.
func (f *Fake) LookPath(name string) (string, error) {
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Executable implements host.Host.
func (f *Fake) Executable() string {
	return f.Python
}

// Version implements host.Host.
func (f *Fake) Version(ctx context.Context, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !host.KnownTarget(target) {
		return "", fmt.Errorf("hosttest: %q: %w", target, host.ErrUnknownTarget)
	}
	if err, ok := f.VersionErrs[target]; ok {
		return "", err
	}
	if v, ok := f.Versions[target]; ok {
		return v, nil
	}
	return "", fmt.Errorf("hosttest: %s: %w", target, host.ErrNotInstalled)
}

// Import implements host.Host.
func (f *Fake) Import(ctx context.Context, module string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.ImportErr != nil {
		return f.ImportErr
	}
	if f.Modules[module] {
		return nil
	}
	return &host.ImportError{Module: module, Message: fmt.Sprintf("No module named '%s'", module)}
}
