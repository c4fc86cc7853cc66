// Package doctor runs a project's diagnostic rules and groups the outcomes
// into sections for display.
//
// A Doctor is bound to one project. Construction opens the project, detects
// its programming model and refuses legacy projects with per-function
// directories unless they are explicitly allowed. RunAllChecks then loads the
// rules for the detected model, dispatches each through the check registry
// and aggregates the results by section.
package doctor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/check/builtin"
	"github.com/kylerisse/funcdoctor/pkg/detect"
	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
	"github.com/kylerisse/funcdoctor/pkg/rules"
)

// Doctor diagnoses a single project.
type Doctor struct {
	project     *project.Project
	detection   detect.Detection
	allowLegacy bool
	logger      *logrus.Logger
	host        host.Host
	registry    *check.Registry
	loader      *rules.Loader
	customRules string
	parallel    int
	maxFileSize int64
}

// Option is a functional option for configuring a Doctor.
type Option func(*Doctor) error

// WithAllowLegacy lets v1 projects with per-function directories proceed.
func WithAllowLegacy(allow bool) Option {
	return func(d *Doctor) error {
		d.allowLegacy = allow
		return nil
	}
}

// WithLogger sets the logger used for the run and passed to handlers.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Doctor) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		d.logger = l
		return nil
	}
}

// WithHost sets the host environment the checks query.
func WithHost(h host.Host) Option {
	return func(d *Doctor) error {
		if h == nil {
			return fmt.Errorf("host must not be nil")
		}
		d.host = h
		return nil
	}
}

// WithRegistry sets the handler registry.
func WithRegistry(r *check.Registry) Option {
	return func(d *Doctor) error {
		if r == nil {
			return fmt.Errorf("registry must not be nil")
		}
		d.registry = r
		return nil
	}
}

// WithLoader sets where built-in rule documents are read from.
func WithLoader(l *rules.Loader) Option {
	return func(d *Doctor) error {
		if l == nil || l.FS == nil {
			return fmt.Errorf("loader must have a filesystem")
		}
		d.loader = l
		return nil
	}
}

// WithCustomRules merges the rule document at path into the built-in rules.
func WithCustomRules(path string) Option {
	return func(d *Doctor) error {
		d.customRules = path
		return nil
	}
}

// WithParallel evaluates up to n rules concurrently. n <= 1 is sequential.
func WithParallel(n int) Option {
	return func(d *Doctor) error {
		if n < 0 {
			return fmt.Errorf("parallelism must not be negative, got %d", n)
		}
		d.parallel = n
		return nil
	}
}

// WithMaxFileSize sets the largest project file, in bytes, that is read.
func WithMaxFileSize(n int64) Option {
	return func(d *Doctor) error {
		if n <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", n)
		}
		d.maxFileSize = n
		return nil
	}
}

// New opens the project at path and detects its programming model. It
// returns a *detect.IncompatibleProjectError for a legacy project with
// per-function directories unless WithAllowLegacy(true) is given.
func New(ctx context.Context, path string, opts ...Option) (*Doctor, error) {
	d, err := configure(opts)
	if err != nil {
		return nil, err
	}
	p, err := project.Open(path, project.WithMaxFileSize(d.maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("doctor: %w", err)
	}
	return d.init(ctx, p)
}

// NewForProject is New for an already opened project. WithMaxFileSize has
// no effect here; the project carries its own limit.
func NewForProject(ctx context.Context, p *project.Project, opts ...Option) (*Doctor, error) {
	d, err := configure(opts)
	if err != nil {
		return nil, err
	}
	return d.init(ctx, p)
}

func configure(opts []Option) (*Doctor, error) {
	d := &Doctor{
		maxFileSize: project.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("doctor: %w", err)
		}
	}

	if d.logger == nil {
		d.logger = logrus.New()
		d.logger.SetOutput(io.Discard)
	}
	if d.host == nil {
		sys, err := host.NewSystem(host.WithLogger(d.logger))
		if err != nil {
			return nil, fmt.Errorf("doctor: %w", err)
		}
		d.host = sys
	}
	if d.registry == nil {
		reg, err := builtin.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("doctor: %w", err)
		}
		d.registry = reg
	}
	if d.loader == nil {
		d.loader = rules.Default()
	}
	return d, nil
}

func (d *Doctor) init(ctx context.Context, p *project.Project) (*Doctor, error) {
	d.project = p

	detection, err := detect.Detect(ctx, p, d.logger)
	if err != nil {
		return nil, fmt.Errorf("doctor: detect %s: %w", p.Root(), err)
	}
	d.detection = detection

	if err := detect.Gate(detection, p.Root(), d.allowLegacy); err != nil {
		return nil, err
	}
	if detection.Legacy() {
		d.logger.Warn(d.LegacyWarning())
	}
	d.logger.WithFields(logrus.Fields{
		"path":  p.Root(),
		"model": detection.Model,
	}).Debug("programming model detected")
	return d, nil
}

// Path returns the absolute project directory.
func (d *Doctor) Path() string {
	return d.project.Root()
}

// Model returns the detected programming model.
func (d *Doctor) Model() detect.Model {
	return d.detection.Model
}

// Detection returns the evidence behind the detected model.
func (d *Doctor) Detection() detect.Detection {
	return d.detection
}

// LegacyWarning describes the consequences of the v1 model, or returns ""
// for v2 projects.
func (d *Doctor) LegacyWarning() string {
	if !d.detection.Legacy() {
		return ""
	}
	return "v1 programming model detected (function.json); only v1 rules are evaluated. Consider migrating to the v2 decorator model."
}

// LoadRules returns the rules for the detected model, merged with the custom
// rule document if one is configured.
func (d *Doctor) LoadRules() ([]rule.Rule, error) {
	base, err := d.loader.Load(d.detection.Model)
	if err != nil {
		return nil, err
	}
	if d.customRules == "" {
		return base, nil
	}
	extra, err := rules.LoadFile(d.customRules)
	if err != nil {
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"file":  d.customRules,
		"rules": len(extra),
	}).Debug("custom rules loaded")
	return rules.Merge(base, extra), nil
}

// RunAllChecks evaluates every rule once and returns the results grouped by
// section, in rule order. Rule evaluation failures are reported as items;
// the returned error is a *rules.LoadError or the context's error.
func (d *Doctor) RunAllChecks(ctx context.Context) ([]SectionResult, error) {
	start := time.Now()

	rs, err := d.LoadRules()
	if err != nil {
		return nil, err
	}

	target := check.Target{
		Project: d.project,
		Host:    d.host,
		Logger:  d.logger,
	}
	results, err := d.evaluate(ctx, rs, target)
	if err != nil {
		return nil, err
	}

	sections := Aggregate(rs, results)
	sum := Summarize(sections)
	d.logger.WithFields(logrus.Fields{
		"model":    d.detection.Model,
		"rules":    len(rs),
		"passed":   sum.Passed,
		"warned":   sum.Warned,
		"failed":   sum.Failed,
		"duration": time.Since(start),
	}).Info("diagnostics complete")
	return sections, nil
}

// evaluate dispatches every rule, concurrently when configured, and returns
// the results in rule order.
func (d *Doctor) evaluate(ctx context.Context, rs []rule.Rule, target check.Target) ([]check.Result, error) {
	results := make([]check.Result, len(rs))

	if d.parallel <= 1 {
		for i, r := range rs {
			res, err := d.registry.Handle(ctx, r, target)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for i, r := range rs {
		g.Go(func() error {
			res, err := d.registry.Handle(gctx, r, target)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
