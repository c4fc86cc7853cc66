package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds every external command.
	DefaultTimeout = 10 * time.Second

	// importExitCode is the exit status of importScript on ImportError.
	importExitCode = 3
)

// importScript imports argv[1] and exits with importExitCode when the
// import raises, whether the module is missing or its own code fails.
const importScript = `import importlib, sys
try:
    importlib.import_module(sys.argv[1])
except ImportError as e:
    sys.stderr.write(str(e))
    sys.exit(3)
except Exception as e:
    sys.stderr.write("%s: %s" % (type(e).__name__, e))
    sys.exit(3)
`

// bareRelease matches versions whose pre-release tag has no hyphen, as
// Python prints them, e.g. "3.13.0rc1".
var bareRelease = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})([A-Za-z][0-9A-Za-z.]*)$`)

// pythonNames are tried in order when no interpreter is configured.
var pythonNames = []string{"python3", "python"}

// System implements Host against the real machine by running commands.
type System struct {
	python  string
	timeout time.Duration
	logger  *logrus.Logger

	once     sync.Once
	resolved string
}

// Option is a functional option for configuring a System.
type Option func(*System) error

// WithPython sets the interpreter used for version and import checks.
func WithPython(path string) Option {
	return func(s *System) error {
		if path == "" {
			return fmt.Errorf("python path must not be empty")
		}
		s.python = path
		return nil
	}
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *System) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithLogger sets the logger for command tracing.
func WithLogger(l *logrus.Logger) Option {
	return func(s *System) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = l
		return nil
	}
}

// NewSystem creates a System with the given options.
func NewSystem(opts ...Option) (*System, error) {
	s := &System{timeout: DefaultTimeout}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("host: %w", err)
		}
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	return s, nil
}

// Getenv implements Host.
func (s *System) Getenv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// LookPath implements Host.
func (s *System) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Executable implements Host. The configured interpreter is returned as-is;
// otherwise the first of python3 and python found on PATH.
func (s *System) Executable() string {
	s.once.Do(func() {
		if s.python != "" {
			s.resolved = s.python
			return
		}
		for _, name := range pythonNames {
			if p, err := exec.LookPath(name); err == nil {
				s.resolved = p
				return
			}
		}
	})
	return s.resolved
}

// Version implements Host.
func (s *System) Version(ctx context.Context, target string) (string, error) {
	var name string
	switch target {
	case TargetPython:
		name = s.Executable()
		if name == "" {
			return "", fmt.Errorf("host: python: %w", ErrNotInstalled)
		}
	case TargetFuncCoreTools:
		name = "func"
	default:
		return "", fmt.Errorf("host: %q: %w", target, ErrUnknownTarget)
	}

	out, err := s.run(ctx, name, "--version")
	if err != nil {
		return "", fmt.Errorf("host: %s --version: %w", target, err)
	}
	v, err := parseVersion(out)
	if err != nil {
		return "", fmt.Errorf("host: %s: %w", target, err)
	}
	return v, nil
}

// Import implements Host.
func (s *System) Import(ctx context.Context, module string) error {
	python := s.Executable()
	if python == "" {
		return fmt.Errorf("host: python: %w", ErrNotInstalled)
	}
	out, err := s.run(ctx, python, "-c", importScript, module)
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == importExitCode {
		return &ImportError{Module: module, Message: lastLine(out)}
	}
	return fmt.Errorf("host: import %s: %w", module, err)
}

// run executes name with args under the configured timeout and returns the
// combined output. A missing binary maps to ErrNotInstalled and an expired
// timeout to ErrTimeout; cancellation of ctx itself is returned unchanged.
func (s *System) run(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, name, args...)
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	s.logger.WithFields(logrus.Fields{
		"command":  name,
		"duration": time.Since(start),
	}).Debug("host command finished")

	switch {
	case err == nil:
		return out.String(), nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%s after %v: %w", name, s.timeout, ErrTimeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return out.String(), err
}

// parseVersion returns the first whitespace-separated token of output that
// parses as a semantic version, e.g. "3.11.4" from "Python 3.11.4".
// "3.13.0rc1" is normalized to "3.13.0-rc1".
func parseVersion(output string) (string, error) {
	for _, field := range strings.Fields(output) {
		if m := bareRelease.FindStringSubmatch(field); m != nil {
			field = m[1] + "-" + m[2]
		}
		if _, err := semver.NewVersion(field); err == nil {
			return strings.TrimPrefix(field, "v"), nil
		}
	}
	return "", fmt.Errorf("%w in %q", ErrNoVersion, strings.TrimSpace(output))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
