package check

import "fmt"

// Status is the raw outcome of a handler.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"

	// StatusError marks an environment anomaly, such as an unreadable
	// file, rather than an unmet condition.
	StatusError Status = "error"
)

// Result captures the outcome of a single rule evaluation.
type Result struct {
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Passed reports whether the result is a pass.
func (r Result) Passed() bool {
	return r.Status == StatusPass
}

// Pass returns a passing Result with a formatted detail.
func Pass(format string, args ...any) Result {
	return Result{Status: StatusPass, Detail: fmt.Sprintf(format, args...)}
}

// Fail returns a failing Result with a formatted detail.
func Fail(format string, args ...any) Result {
	return Result{Status: StatusFail, Detail: fmt.Sprintf(format, args...)}
}

// Warn returns a warning Result with a formatted detail.
func Warn(format string, args ...any) Result {
	return Result{Status: StatusWarn, Detail: fmt.Sprintf(format, args...)}
}

// PassIf returns a pass with passDetail when ok, otherwise a fail with failDetail.
func PassIf(ok bool, passDetail, failDetail string) Result {
	if ok {
		return Result{Status: StatusPass, Detail: passDetail}
	}
	return Result{Status: StatusFail, Detail: failDetail}
}
