// Package host abstracts the parts of the local machine that checks inspect:
// environment variables, executables on PATH, tool versions and the Python
// interpreter's ability to import a module.
package host

import (
	"context"
	"errors"
	"fmt"
)

// Symbolic targets understood by Version.
const (
	TargetPython        = "python"
	TargetFuncCoreTools = "func_core_tools"
)

// ExecutableSentinel names the running Python interpreter in path rules.
const ExecutableSentinel = "sys.executable"

var (
	// ErrUnknownTarget is returned by Version for targets it cannot resolve.
	ErrUnknownTarget = errors.New("unknown version target")

	// ErrNotInstalled is returned when a required tool cannot be found.
	ErrNotInstalled = errors.New("not installed")

	// ErrTimeout is returned when a host command exceeds its time limit.
	ErrTimeout = errors.New("timed out")

	// ErrNoVersion is returned when a tool's output carries no version.
	ErrNoVersion = errors.New("no version found")

	// ErrMissingDependency marks a module the interpreter cannot import.
	ErrMissingDependency = errors.New("missing dependency")
)

// ImportError reports a module that failed to import, with the
// interpreter's message.
type ImportError struct {
	Module  string
	Message string
}

func (e *ImportError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cannot import %s", e.Module)
	}
	return fmt.Sprintf("cannot import %s: %s", e.Module, e.Message)
}

// Unwrap lets errors.Is match ErrMissingDependency.
func (e *ImportError) Unwrap() error {
	return ErrMissingDependency
}

// Host is the machine-level view available to checks.
type Host interface {
	// Getenv returns the value of key and whether it is set.
	Getenv(key string) (string, bool)

	// LookPath resolves name against PATH.
	LookPath(name string) (string, error)

	// Executable returns the Python interpreter path, or "" if none is found.
	Executable() string

	// Version returns the version string of a symbolic target.
	Version(ctx context.Context, target string) (string, error)

	// Import asks the interpreter to import module. A failed import
	// returns an *ImportError.
	Import(ctx context.Context, module string) error
}

// KnownTarget reports whether Version understands target.
func KnownTarget(target string) bool {
	return target == TargetPython || target == TargetFuncCoreTools
}
