package harness

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/simloom/internal/diagnose"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/store"
	"github.com/roach88/simloom/internal/world"
)

// AssertionContext is the final state assertions are evaluated against.
type AssertionContext struct {
	Ctx       context.Context
	Registry  *registry.Registry
	World     *world.World
	View      *loop.View
	Store     *store.Store
	Workspace string

	// Synthesis is the number of synthesizer calls made.
	Synthesis int
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v tick=%d failed=%t\n", i+1, ev.RequestID, ev.Stages, ev.Tick, ev.Failed)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEntityValue:
		return assertEntityValue(a, actx)
	case AssertEntityCount:
		return assertCount(a, "live entities", len(actx.World.Entities()))
	case AssertRegistered:
		return assertRegistered(a, actx.Registry, true)
	case AssertUnregistered:
		return assertRegistered(a, actx.Registry, false)
	case AssertRunCount:
		sys, ok := actx.Registry.GetSystem(a.System)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("system %s", a.System), Actual: "not registered"}
		}
		return assertCount(a, "runs of "+a.System, int(sys.RunCount))
	case AssertBroken:
		return assertBroken(a, diagnose.Run(actx.Registry))
	case AssertHealthy:
		r := diagnose.Run(actx.Registry)
		if !r.Healthy() {
			return &AssertionError{Type: a.Type, Expected: "healthy registry", Actual: fmt.Sprintf("broken systems %v", r.Broken())}
		}
		return nil
	case AssertSynthesisCount:
		return assertCount(a, "synthesizer calls", actx.Synthesis)
	case AssertStoredReports:
		reports, err := actx.Store.Reports(actx.Ctx, actx.Workspace)
		if err != nil {
			return fmt.Errorf("read stored reports: %w", err)
		}
		return assertCount(a, "stored reports", len(reports))
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEntityValue resolves an alias or id and compares one property.
func assertEntityValue(a Assertion, actx *AssertionContext) error {
	id, err := resolveEntity(a.Entity, actx.View)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("entity %s", a.Entity), Actual: err.Error()}
	}
	got, err := actx.World.GetComponentValue(id, a.Component, a.Property)
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s on entity %s", a.Component, a.Property, a.Entity),
			Actual:   err.Error(),
		}
	}
	want, err := ir.Coerce(got.Type(), a.Value)
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %v", a.Component, a.Property, a.Value),
			Actual:   fmt.Sprintf("property is %s: %v", got.Type(), err),
		}
	}
	if want != got {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %s on entity %s", a.Component, a.Property, want, a.Entity),
			Actual:   fmt.Sprintf("%s.%s = %s", a.Component, a.Property, got),
		}
	}
	return nil
}

func resolveEntity(ref string, view *loop.View) (world.Entity, error) {
	s := strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return world.Entity(n), nil
	}
	if id, ok := view.Aliases[s]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown alias %q", s)
}

// assertRegistered checks a name against both definition kinds.
func assertRegistered(a Assertion, reg *registry.Registry, want bool) error {
	_, isComp := reg.GetComponent(a.Name)
	_, isSys := reg.GetSystem(a.Name)
	got := isComp || isSys
	if got == want {
		return nil
	}
	state := map[bool]string{true: "registered", false: "not registered"}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s %s", a.Name, state[want]),
		Actual:   fmt.Sprintf("%s %s", a.Name, state[got]),
	}
}

func assertBroken(a Assertion, r *diagnose.Report) error {
	sr, ok := r.System(a.System)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("system %s", a.System), Actual: "not registered"}
	}
	if !sr.Broken() {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("system %s broken", a.System), Actual: "system is healthy"}
	}
	if a.Missing != nil && !slices.Equal(a.Missing, sr.MissingComponents) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("missing components %v", a.Missing),
			Actual:   fmt.Sprintf("missing components %v", sr.MissingComponents),
		}
	}
	return nil
}

func assertCount(a Assertion, what string, got int) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", *a.Count, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
	}
}
