// Package builtin assembles the registry of every built-in check handler.
package builtin

import (
	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/check/bindings"
	"github.com/kylerisse/funcdoctor/pkg/check/files"
	"github.com/kylerisse/funcdoctor/pkg/check/hostenv"
	"github.com/kylerisse/funcdoctor/pkg/check/source"
)

// NewRegistry returns a Registry with all built-in handlers registered.
func NewRegistry() (*check.Registry, error) {
	reg := check.NewRegistry()
	for _, register := range []func(*check.Registry) error{
		hostenv.Register,
		files.Register,
		source.Register,
		bindings.Register,
	} {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
