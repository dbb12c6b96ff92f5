package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Cause classifies why a program failed.
type Cause string

const (
	// CauseCompile indicates logic that does not parse or type-check.
	CauseCompile Cause = "compile"

	// CausePanic indicates a panic raised by the logic itself.
	CausePanic Cause = "panic"

	// CausePrimitive indicates a world primitive rejected a call.
	CausePrimitive Cause = "primitive"

	// CauseBudget indicates the op budget ran out.
	CauseBudget Cause = "op_budget"

	// CauseTimeout indicates the tick ran past its deadline.
	CauseTimeout Cause = "timeout"

	// CauseReturned indicates Tick returned a non-nil error.
	CauseReturned Cause = "returned"
)

// Fault is a compile or run failure positioned within the logic text.
type Fault struct {
	Cause   Cause
	Message string

	// Line is 1-based within the logic text; 0 when unknown.
	Line   int
	Column int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", f.Cause, f.Line, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Cause, f.Message)
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault extracts a *Fault from err's chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)
	return f, ok
}

// Excerpt returns the trimmed text of 1-based line in logic, or "".
func Excerpt(logic string, line int) string {
	if line <= 0 {
		return ""
	}
	lines := strings.Split(logic, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
