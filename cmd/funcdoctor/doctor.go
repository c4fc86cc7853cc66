package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kylerisse/funcdoctor/pkg/config"
	"github.com/kylerisse/funcdoctor/pkg/detect"
	"github.com/kylerisse/funcdoctor/pkg/doctor"
	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/report"
	"github.com/kylerisse/funcdoctor/pkg/rules"
)

// newHost builds the host environment for a run. Tests replace it.
var newHost = func(cfg config.Config, logger *logrus.Logger) (host.Host, error) {
	opts := []host.Option{host.WithLogger(logger)}
	if cfg.Python != "" {
		opts = append(opts, host.WithPython(cfg.Python))
	}
	return host.NewSystem(opts...)
}

type doctorOptions struct {
	path       string
	format     string
	output     string
	verbose    bool
	debug      bool
	allowV1    bool
	configFile string
	envFiles   []string
	parallel   int
	color      string
}

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics against a function-app project",
		Long: `Run every diagnostic rule for the project's programming model and print
the results grouped by section.

Exit codes:
  0  all required checks passed
  1  at least one required check failed
  2  the project uses the v1 model with per-function folders (see --allow-v1)
  3  the rule document is missing or corrupt
  4  invalid input`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			color, err := cmd.Flags().GetString("color")
			if err != nil {
				return exitf(exitInvalidInput, "%v", err)
			}
			opts.color = color
			return runDoctor(cmd.Context(), opts, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.path, "path", "p", ".", "project directory to diagnose")
	f.StringVarP(&opts.format, "format", "f", "table", "output format (table|json)")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "show hints for checks that did not pass")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	f.BoolVar(&opts.allowV1, "allow-v1", false, "diagnose v1 projects with per-function folders")
	f.StringVar(&opts.configFile, "config", "", "configuration file (default: "+config.ProjectFile+" in the project)")
	f.StringSliceVar(&opts.envFiles, "env-file", nil, "load environment variables from dotenv files before running")
	f.IntVar(&opts.parallel, "parallel", 0, "evaluate up to N rules concurrently (0 uses the configuration)")
	return cmd
}

func (o doctorOptions) validate() error {
	switch o.format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid --format %q: expected table or json", o.format)
	}
	switch o.color {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("invalid --color %q: expected auto, on or off", o.color)
	}
	if o.parallel < 0 {
		return fmt.Errorf("invalid --parallel %d: must not be negative", o.parallel)
	}

	info, err := os.Stat(o.path)
	if err != nil {
		return fmt.Errorf("invalid --path %q: %w", o.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid --path %q: not a directory", o.path)
	}

	if o.output != "" {
		if info, err := os.Stat(o.output); err == nil && info.IsDir() {
			return fmt.Errorf("invalid --output %q: is a directory", o.output)
		}
	}
	return nil
}

func runDoctor(ctx context.Context, opts doctorOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return &exitError{code: exitInvalidInput, err: err}
	}
	if len(opts.envFiles) > 0 {
		if err := godotenv.Load(opts.envFiles...); err != nil {
			return exitf(exitInvalidInput, "load --env-file: %v", err)
		}
	}

	cfg, err := config.Load(opts.configFile, opts.path)
	if err != nil {
		return &exitError{code: exitInvalidInput, err: err}
	}
	if opts.debug {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	logger := cfg.NewLogger(stderr)
	customRules := cfg.CustomRulesPath()
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	if len(cfg.Sources) > 0 {
		logger.WithField("files", strings.Join(cfg.Sources, ", ")).Debug("configuration loaded")
	}

	h, err := newHost(cfg, logger)
	if err != nil {
		return &exitError{code: exitInvalidInput, err: err}
	}

	parallel := opts.parallel
	if parallel == 0 && cfg.ParallelExecution {
		parallel = runtime.NumCPU()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout())
	defer cancel()

	d, err := doctor.New(ctx, opts.path,
		doctor.WithAllowLegacy(opts.allowV1),
		doctor.WithLogger(logger),
		doctor.WithHost(h),
		doctor.WithCustomRules(customRules),
		doctor.WithParallel(parallel),
		doctor.WithMaxFileSize(cfg.MaxFileSize()),
	)
	if err != nil {
		var incompatible *detect.IncompatibleProjectError
		if errors.As(err, &incompatible) {
			return &exitError{code: exitIncompatible, err: fmt.Errorf(
				"%s uses the v1 programming model with per-function folders (%s); rerun with --allow-v1 to diagnose it",
				incompatible.Path, strings.Join(incompatible.LegacyFiles, ", "))}
		}
		return &exitError{code: exitFailed, err: err}
	}

	sections, err := d.RunAllChecks(ctx)
	if err != nil {
		var loadErr *rules.LoadError
		if errors.As(err, &loadErr) {
			return &exitError{code: exitRules, err: err}
		}
		return &exitError{code: exitFailed, err: err}
	}

	out := stdout
	if opts.output != "" {
		file, err := os.Create(opts.output)
		if err != nil {
			return exitf(exitInvalidInput, "create --output: %v", err)
		}
		defer file.Close()
		out = file
	}

	color := useColor(opts.color, cfg.EnableColors, out)

	switch opts.format {
	case "json":
		err = report.WriteJSON(out, d.Path(), string(d.Model()), sections)
	default:
		if w := d.LegacyWarning(); w != "" {
			fmt.Fprintf(stderr, "Warning: %s\n", w)
		}
		err = report.WriteTable(out, sections, report.Options{
			Color:   color,
			Verbose: opts.verbose,
			Width:   cfg.OutputWidth,
			Path:    d.Path(),
			Model:   string(d.Model()),
		})
	}
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}

	if code := report.ExitCode(sections); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}
