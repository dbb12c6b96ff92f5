package sandbox

import (
	"errors"
	"fmt"
)

// OpBudget counts primitive calls made during one tick and enforces a limit.
//
// A loop that keeps calling into the world is caught here long before the
// wall-clock timeout fires. A limit of zero or less disables the check.
type OpBudget struct {
	max     int
	current int
}

// NewOpBudget creates a budget allowing max primitive calls.
func NewOpBudget(max int) *OpBudget {
	return &OpBudget{max: max}
}

// Check counts one call and returns BudgetExceededError past the limit.
func (b *OpBudget) Check(system string) error {
	b.current++
	if b.max > 0 && b.current > b.max {
		return &BudgetExceededError{System: system, Ops: b.current, Limit: b.max}
	}
	return nil
}

// Current returns the number of calls counted so far.
func (b *OpBudget) Current() int {
	return b.current
}

// Max returns the limit.
func (b *OpBudget) Max() int {
	return b.max
}

// BudgetExceededError is raised when a tick makes too many primitive calls.
type BudgetExceededError struct {
	System string
	Ops    int
	Limit  int
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("system %s exceeded op budget: %d calls > %d limit", e.System, e.Ops, e.Limit)
}

// IsBudgetExceeded returns true if err is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
