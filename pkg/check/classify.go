package check

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

var (
	// ErrConfig marks a rule that is malformed for its kind.
	ErrConfig = errors.New("invalid rule configuration")

	// ErrPanic wraps a value recovered from a panicking handler.
	ErrPanic = errors.New("handler panicked")
)

// Configf returns a configuration error that Classify reports as a fail.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Classify turns an evaluation error into a Result. Malformed rules and
// missing dependencies are fails; file system, encoding and size problems
// and anything unrecognized are errors.
func Classify(err error) Result {
	var (
		missing *rule.MissingFieldsError
		pathErr *fs.PathError
		syntax  *json.SyntaxError
	)

	switch {
	case errors.As(err, &missing):
		return Fail("Configuration error: Missing condition fields: %s. Please check your rule configuration.", strings.Join(missing.Fields, ", "))

	case errors.Is(err, ErrConfig),
		errors.Is(err, rule.ErrInvalidRule),
		errors.Is(err, rule.ErrInvalidCondition),
		errors.Is(err, host.ErrUnknownTarget):
		return Fail("Configuration error: %v. Please check your rule configuration.", err)

	case errors.Is(err, host.ErrMissingDependency):
		return Fail("Missing dependency: %v. Please install required packages.", err)

	case errors.Is(err, project.ErrFileTooLarge):
		return Result{Status: StatusError, Detail: "Memory error: File too large to process."}

	case errors.Is(err, project.ErrEncoding),
		errors.Is(err, project.ErrInvalidJSON),
		errors.As(err, &syntax):
		return Result{Status: StatusError, Detail: fmt.Sprintf("File encoding error: %v. Please check file encoding.", err)}

	case errors.As(err, &pathErr),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrNotExist):
		return Result{Status: StatusError, Detail: fmt.Sprintf("File system error: %v. Please check file permissions and paths.", err)}
	}

	return Result{Status: StatusError, Detail: fmt.Sprintf("Unexpected error: %v. Please check the logs for more details.", err)}
}
