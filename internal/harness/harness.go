package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/simloom/internal/engine"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/store"
	"github.com/roach88/simloom/internal/synth"
	"github.com/roach88/simloom/internal/testutil"
	"github.com/roach88/simloom/internal/world"
)

// DefaultSynthesisTimeout bounds each scripted synthesizer call. Block
// steps run into it.
const DefaultSynthesisTimeout = 200 * time.Millisecond

// Harness runs one scenario against a fresh loop backed by an in-memory
// store. Request ids come from a sequence generator so traces are stable.
type Harness struct {
	store  *store.Store
	reg    *registry.Registry
	world  *world.World
	loop   *loop.Loop
	script *testutil.ScriptedSynthesizer
	logger *slog.Logger

	workspace string
}

// Option configures a scenario run.
type Option func(*options)

type options struct {
	timeout time.Duration
	limits  engine.Limits
	logger  *slog.Logger
}

// WithSynthesisTimeout overrides DefaultSynthesisTimeout.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLimits overrides engine.DefaultLimits.
func WithLimits(l engine.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithLogger sets the harness logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// An error is returned only when the scenario cannot run at all: a bad
// synthesis script, a store failure or a failing setup request. Failed
// expectations and assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		timeout: DefaultSynthesisTimeout,
		limits:  engine.DefaultLimits(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	steps, err := scriptSteps(scenario.Synthesis)
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis script: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario, steps, o)

	for i, req := range scenario.Setup {
		rep, err := h.loop.Handle(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, rep.RequestID, err)
		}
		h.logger.Info("setup step completed", "step", i, "request", rep.RequestID)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		rep, err := h.loop.Handle(ctx, step.Request)
		result.AddReport(rep)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, msg := range checkExpect(i, step.Expect, rep, result.Trace[len(result.Trace)-1]) {
			result.AddError(msg)
		}
		h.logger.Info("flow step completed",
			"step", i,
			"request", rep.RequestID,
			"stages", len(rep.Stages),
			"error", err)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Registry:  h.reg,
		World:     h.world,
		View:      h.loop.View(),
		Store:     h.store,
		Workspace: h.workspace,
		Synthesis: len(h.script.Requests()),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario, steps []testutil.Step, o options) *Harness {
	reg := registry.New()
	w := world.New(reg)
	script := testutil.NewScriptedSynthesizer(steps...)
	eng := engine.New(reg, engine.WithLimits(o.limits))
	gw := synth.NewGateway(script, synth.WithTimeout(o.timeout))

	loopOpts := []loop.Option{
		loop.WithIDGenerator(testutil.NewSequenceGenerator(scenario.IDPrefix)),
		loop.WithSink(st.Sink(scenario.Name)),
	}
	if scenario.MaxRepairs != nil {
		loopOpts = append(loopOpts, loop.WithMaxRepairs(*scenario.MaxRepairs))
	}

	return &Harness{
		store:     st,
		reg:       reg,
		world:     w,
		loop:      loop.New(reg, w, eng, gw, loopOpts...),
		script:    script,
		logger:    o.logger,
		workspace: scenario.Name,
	}
}

// scriptSteps turns the scenario's synthesis script into synthesizer steps.
func scriptSteps(script []SynthesisStep) ([]testutil.Step, error) {
	steps := make([]testutil.Step, 0, len(script))
	for i, s := range script {
		switch {
		case s.Block:
			steps = append(steps, testutil.Step{Block: true})
		case s.Error != "":
			steps = append(steps, testutil.Step{Err: errors.New(s.Error)})
		case s.Raw != "":
			steps = append(steps, testutil.Step{Payload: s.Raw})
		default:
			raw, err := synth.EncodePayload(s.componentDefs(), s.systemDefs())
			if err != nil {
				return nil, fmt.Errorf("synthesis[%d]: %w", i, err)
			}
			steps = append(steps, testutil.Step{Payload: string(raw)})
		}
	}
	return steps, nil
}

func (s SynthesisStep) componentDefs() []ir.ComponentDef {
	defs := make([]ir.ComponentDef, 0, len(s.Components))
	for _, c := range s.Components {
		def := ir.ComponentDef{Name: c.Name, Description: c.Description}
		for _, p := range c.Properties {
			def.Properties = append(def.Properties, ir.Property{
				Name:        p.Name,
				Type:        ir.PropertyType(p.Type),
				Description: p.Description,
				Default:     p.Default,
			})
		}
		defs = append(defs, def)
	}
	return defs
}

func (s SynthesisStep) systemDefs() []ir.SystemDef {
	defs := make([]ir.SystemDef, 0, len(s.Systems))
	for _, sys := range s.Systems {
		defs = append(defs, ir.SystemDef{
			Name:               sys.Name,
			Description:        sys.Description,
			RequiredComponents: slices.Clone(sys.Requires),
			Logic:              sys.Logic,
		})
	}
	return defs
}

// checkExpect compares one report against its expect clause.
func checkExpect(step int, want *ExpectClause, rep *loop.Report, ev TraceEvent) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: ", step, rep.RequestID)+fmt.Sprintf(format, args...))
	}

	if want.Failed != nil && *want.Failed != rep.Failed() {
		fail("expected failed=%t, got failed=%t (error %q)", *want.Failed, rep.Failed(), rep.Error)
	}
	if want.ErrorContains != "" && !strings.Contains(rep.Error, want.ErrorContains) {
		fail("expected error containing %q, got %q", want.ErrorContains, rep.Error)
	}
	if want.Stages != nil && !slices.Equal(want.Stages, rep.Stages) {
		fail("expected stages %v, got %v", want.Stages, rep.Stages)
	}
	if want.Registered != nil && !sameSet(want.Registered, ev.Registered) {
		fail("expected registered %v, got %v", want.Registered, ev.Registered)
	}
	if want.Rejected != nil && !sameSet(want.Rejected, ev.Rejected) {
		fail("expected rejected %v, got %v", want.Rejected, ev.Rejected)
	}
	if want.Repairs != nil && *want.Repairs != len(rep.Repairs) {
		fail("expected %d repair attempts, got %d", *want.Repairs, len(rep.Repairs))
	}
	return errs
}

func sameSet(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
