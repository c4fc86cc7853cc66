// Package check defines check handlers, their results and the registry that
// dispatches rules to them.
//
// A Handler evaluates one rule kind against a Target: the project tree, the
// host environment and a logger. Handlers report a genuine unmet condition
// as a fail Result and return an error only when evaluation itself could
// not complete. The Registry converts those errors, and any panic, into
// classified Results so that one broken rule never aborts a diagnostic run.
package check

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

// Target is everything a handler may inspect.
type Target struct {
	Project *project.Project
	Host    host.Host
	Logger  *logrus.Logger
}

// Handler evaluates a rule of a single kind.
type Handler func(ctx context.Context, r rule.Rule, t Target) (Result, error)
