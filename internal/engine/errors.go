package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/sandbox"
)

// RuntimeError is returned for a failed tick.
//
// It unwraps to an ir.Error with code RuntimeFault (so ir.IsCode works on
// it) and to the underlying cause.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// System names the faulting system.
	System string

	// Tick is the tick number the fault happened on.
	Tick int64

	// Record is the error record stored on the system.
	Record *ir.ErrorRecord

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes tick failures.
type RuntimeErrorCode string

const (
	// ErrCodeCompile indicates logic that failed to compile.
	ErrCodeCompile RuntimeErrorCode = "COMPILE_ERROR"

	// ErrCodePanic indicates a panic in logic.
	ErrCodePanic RuntimeErrorCode = "PANIC"

	// ErrCodePrimitive indicates a rejected world primitive call.
	ErrCodePrimitive RuntimeErrorCode = "PRIMITIVE_ERROR"

	// ErrCodeOpBudget indicates the op budget ran out.
	ErrCodeOpBudget RuntimeErrorCode = "OP_BUDGET_EXCEEDED"

	// ErrCodeTimeout indicates the tick ran past its deadline.
	ErrCodeTimeout RuntimeErrorCode = "TIMEOUT"

	// ErrCodeReturned indicates Tick returned an error.
	ErrCodeReturned RuntimeErrorCode = "RETURNED_ERROR"

	// ErrCodeMissingDependency indicates a required component was
	// unregistered after the system was.
	ErrCodeMissingDependency RuntimeErrorCode = "MISSING_DEPENDENCY"
)

var causeCodes = map[sandbox.Cause]RuntimeErrorCode{
	sandbox.CauseCompile:   ErrCodeCompile,
	sandbox.CausePanic:     ErrCodePanic,
	sandbox.CausePrimitive: ErrCodePrimitive,
	sandbox.CauseBudget:    ErrCodeOpBudget,
	sandbox.CauseTimeout:   ErrCodeTimeout,
	sandbox.CauseReturned:  ErrCodeReturned,
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s (%s, tick %d)", e.fault().Error(), e.Code, e.Tick)
}

// Unwrap exposes the RuntimeFault and the underlying cause.
func (e *RuntimeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.fault()}
	}
	return []error{e.fault(), e.Err}
}

func (e *RuntimeError) fault() *ir.Error {
	rec := e.Record
	if rec == nil {
		rec = &ir.ErrorRecord{}
	}
	return ir.Fault(e.System, rec)
}

// IsTimeoutError returns true if err is a tick timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeoutError(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsBudgetError returns true if err is an exhausted op budget.
func IsBudgetError(err error) bool {
	return hasCode(err, ErrCodeOpBudget)
}

// IsCompileError returns true if err is a logic compile failure.
func IsCompileError(err error) bool {
	return hasCode(err, ErrCodeCompile)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// codeFor classifies a failure cause.
func codeFor(err error) RuntimeErrorCode {
	if f, ok := sandbox.AsFault(err); ok {
		if code, ok := causeCodes[f.Cause]; ok {
			return code
		}
	}
	if ir.IsCode(err, ir.CodeMissingDependency) {
		return ErrCodeMissingDependency
	}
	return ErrCodePanic
}
