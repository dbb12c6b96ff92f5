package loop

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/simloom/internal/cognition"
	"github.com/roach88/simloom/internal/diagnose"
	"github.com/roach88/simloom/internal/engine"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/synth"
	"github.com/roach88/simloom/internal/world"
)

// DefaultMaxRepairs bounds repair attempts per faulting tick batch.
const DefaultMaxRepairs = 2

// Stage is a state of the per-request state machine.
type Stage string

const (
	StageReceiveIntent Stage = "RECEIVE_INTENT"
	StageSynthesize    Stage = "SYNTHESIZE"
	StageRegister      Stage = "REGISTER"
	StageExecute       Stage = "EXECUTE"
	StageDiagnose      Stage = "DIAGNOSE"
	StageRepair        Stage = "REPAIR"
	StageReport        Stage = "REPORT"
)

// Recorder receives loop measurements.
type Recorder interface {
	ObserveRequest(outcome string, d time.Duration)
	ObserveSynthesis(outcome string, d time.Duration)
	ObserveRepair(outcome string)
}

// Sink persists each finished request.
type Sink interface {
	Save(ctx context.Context, rep *Report, view *View) error
}

// Report is the outcome of one request.
type Report struct {
	RequestID    string                `json:"request_id"`
	Intent       string                `json:"intent,omitempty"`
	Step         string                `json:"step,omitempty"`
	Stages       []Stage               `json:"stages"`
	Proposal     *synth.Outcome        `json:"proposal,omitempty"`
	Commands     []CommandResult       `json:"commands,omitempty"`
	Ticks        []*engine.BatchResult `json:"ticks,omitempty"`
	Repairs      []RepairAttempt       `json:"repairs,omitempty"`
	Diagnostics  *diagnose.Report      `json:"diagnostics,omitempty"`
	Plan         []cognition.PlanStep  `json:"plan,omitempty"`
	RegistryHash string                `json:"registry_hash"`
	Tick         int64                 `json:"tick"`
	Error        string                `json:"error,omitempty"`
}

// Failed reports whether the request ended with an unresolved error.
func (r *Report) Failed() bool {
	return r.Error != ""
}

func (r *Report) enter(s Stage) {
	r.Stages = append(r.Stages, s)
}

// RepairAttempt reports one REPAIR step.
type RepairAttempt struct {
	System   string         `json:"system"`
	Attempt  int            `json:"attempt"`
	Replaced bool           `json:"replaced"`
	Outcome  *synth.Outcome `json:"outcome,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// View is an immutable picture of the loop's state after a request.
type View struct {
	RequestID   string                  `json:"request_id,omitempty"`
	Version     uint64                  `json:"version"`
	Tick        int64                   `json:"tick"`
	LastTicks   map[string]int64        `json:"last_ticks,omitempty"`
	Registry    ir.RegistrySnapshot     `json:"registry"`
	World       world.Snapshot          `json:"world"`
	Aliases     map[string]world.Entity `json:"aliases"`
	Diagnostics *diagnose.Report        `json:"diagnostics,omitempty"`
}

// Result is delivered on the channel returned by Submit.
type Result struct {
	Report *Report
	Err    error
}

// Loop drives requests through the state machine. All registry and world
// mutation goes through it; Handle calls are serialized.
type Loop struct {
	reg     *registry.Registry
	world   *world.World
	engine  *engine.Engine
	gateway *synth.Gateway

	ids        IDGenerator
	model      string
	maxRepairs int
	recorder   Recorder
	sink       Sink

	mu      sync.Mutex
	aliases map[string]world.Entity
	version uint64
	view    atomic.Pointer[View]
	queue   *requestQueue
}

// Option configures a Loop.
type Option func(*Loop)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(l *Loop) {
		l.model = model
	}
}

// WithMaxRepairs sets the repair budget. Negative values are treated as 0.
func WithMaxRepairs(n int) Option {
	return func(l *Loop) {
		l.maxRepairs = max(n, 0)
	}
}

// WithIDGenerator sets the request id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Loop) {
		l.ids = g
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		l.recorder = r
	}
}

// WithSink sets where finished requests are persisted.
func WithSink(s Sink) Option {
	return func(l *Loop) {
		l.sink = s
	}
}

// WithAliases seeds entity aliases, typically from a saved workspace.
func WithAliases(aliases map[string]world.Entity) Option {
	return func(l *Loop) {
		maps.Copy(l.aliases, aliases)
	}
}

// New creates a loop over one registry and world.
func New(reg *registry.Registry, w *world.World, eng *engine.Engine, gw *synth.Gateway, opts ...Option) *Loop {
	l := &Loop{
		reg:        reg,
		world:      w,
		engine:     eng,
		gateway:    gw,
		ids:        UUIDv7Generator{},
		maxRepairs: DefaultMaxRepairs,
		aliases:    make(map[string]world.Entity),
		queue:      newRequestQueue(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.publish("", nil)
	return l
}

// View returns the last published view. It is never nil.
func (l *Loop) View() *View {
	return l.view.Load()
}

// Handle runs one request to completion.
//
// The report is always returned. The error is non-nil when the request
// ended unresolved: a synthesis failure, a failed command, an unknown
// system or a fault that survived MaxRepairs repair attempts.
func (l *Loop) Handle(ctx context.Context, req Request) (*Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	rep := &Report{RequestID: req.ID, Stages: []Stage{}}
	if rep.RequestID == "" {
		rep.RequestID = l.ids.Generate()
	}

	err := l.handle(ctx, req, rep)
	if err != nil {
		rep.Error = err.Error()
	}
	if rep.Step != "" {
		status := cognition.StatusCompleted
		if err != nil {
			status = cognition.StatusFailed
		}
		rep.Plan = cognition.Mark(req.Plan, rep.Step, status)
	}
	rep.enter(StageReport)
	rep.Tick = l.engine.Clock().Current()
	if h, herr := l.reg.Hash(); herr == nil {
		rep.RegistryHash = h
	}

	view := l.publish(rep.RequestID, rep.Diagnostics)
	if l.sink != nil {
		if serr := l.sink.Save(ctx, rep, view); serr != nil {
			slog.Error("saving report", "request", rep.RequestID, "error", serr)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if l.recorder != nil {
		l.recorder.ObserveRequest(outcome, time.Since(start))
	}
	slog.Info("request handled",
		"request", rep.RequestID,
		"outcome", outcome,
		"stages", len(rep.Stages),
		"repairs", len(rep.Repairs),
		"duration", time.Since(start))
	return rep, err
}

func (l *Loop) handle(ctx context.Context, req Request, rep *Report) error {
	rep.enter(StageReceiveIntent)

	intent := strings.TrimSpace(req.Intent)
	if intent == "" && len(req.Plan) > 0 {
		if step, ok := cognition.NextStep(req.Plan); ok {
			intent = step.Description
			rep.Step = step.ID
		}
	}
	rep.Intent = intent

	if intent == "" && len(req.Commands) == 0 && len(req.Ticks) == 0 && !req.Diagnose {
		return ir.SchemaErrorf("request", "nothing to do: no intent, plan step, commands or ticks")
	}
	model := cmp.Or(req.Model, l.model)

	rejected := false
	if intent != "" {
		rep.enter(StageSynthesize)
		p, err := l.synthesize(ctx, synth.Request{Intent: intent, Model: model})
		if err != nil {
			l.diagnose(rep)
			return err
		}
		rep.enter(StageRegister)
		rep.Proposal = synth.Commit(l.reg, p, synth.CommitOptions{})
		rejected = len(rep.Proposal.Rejected) > 0
	}

	var err error
	if len(req.Commands) > 0 || len(req.Ticks) > 0 {
		rep.enter(StageExecute)
		rep.Commands, err = l.apply(req.Commands)
		if err == nil {
			err = l.execute(ctx, rep, req.Ticks, intent, model)
		}
	}

	if err != nil || rejected || req.Diagnose {
		l.diagnose(rep)
	}
	return err
}

// synthesize proposes definitions, retrying timed out calls up to the
// repair budget. Other errors are returned at once.
func (l *Loop) synthesize(ctx context.Context, sreq synth.Request) (*synth.Proposal, error) {
	for attempt := 0; ; attempt++ {
		sreq.Registry = l.reg.Snapshot()
		start := time.Now()
		p, err := l.gateway.Propose(ctx, sreq)
		l.observeSynthesis(err, time.Since(start))
		if err == nil {
			return p, nil
		}
		if !ir.IsCode(err, ir.CodeSynthesisTimeout) || ctx.Err() != nil || attempt >= l.maxRepairs {
			return nil, err
		}
		slog.Warn("retrying synthesis", "subject", sreq.Subject(), "attempt", attempt+1)
	}
}

// execute runs each tick batch. A faulting batch is diagnosed and repaired
// until its remaining ticks succeed or the repair budget is spent.
func (l *Loop) execute(ctx context.Context, rep *Report, ticks []TickSpec, intent, model string) error {
	for _, spec := range ticks {
		remaining := spec.Count
		attempts := 0
		for remaining > 0 {
			b, err := l.engine.ExecuteBatch(ctx, spec.System, l.world, remaining)
			rep.Ticks = append(rep.Ticks, b)
			if err == nil {
				break
			}
			var rt *engine.RuntimeError
			if !errors.As(err, &rt) {
				return err
			}
			remaining -= b.Completed

			diag := l.diagnose(rep)
			replaced := false
			for !replaced {
				if attempts >= l.maxRepairs {
					if l.recorder != nil {
						l.recorder.ObserveRepair("exhausted")
					}
					return fmt.Errorf("system %s unresolved after %d repair attempts: %w", spec.System, attempts, err)
				}
				attempts++
				rep.enter(StageRepair)
				replaced, err = l.repair(ctx, rep, spec.System, attempts, intent, model, diag, err)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			rep.enter(StageExecute)
		}
	}
	return nil
}

// repair asks for a replacement of one broken system. It reports whether
// the system was replaced; fault is returned unchanged otherwise so the
// caller can surface it when the budget runs out.
func (l *Loop) repair(ctx context.Context, rep *Report, system string, attempt int, intent, model string, diag *diagnose.Report, fault error) (bool, error) {
	sys, ok := l.reg.GetSystem(system)
	if !ok {
		return false, ir.NotFound("system", system)
	}
	rc := &synth.RepairContext{System: system, Logic: sys.Logic, LastError: sys.LastError.Clone()}
	if sr, ok := diag.System(system); ok {
		for _, w := range sr.Warnings {
			rc.Warnings = append(rc.Warnings, w.String())
		}
	}
	sreq := synth.Request{
		Intent:   cmp.Or(intent, fmt.Sprintf("repair system %s", system)),
		Registry: l.reg.Snapshot(),
		Model:    model,
		Repair:   rc,
	}

	ra := RepairAttempt{System: system, Attempt: attempt}
	start := time.Now()
	p, err := l.gateway.Propose(ctx, sreq)
	l.observeSynthesis(err, time.Since(start))
	if err != nil {
		ra.Error = err.Error()
		rep.Repairs = append(rep.Repairs, ra)
		l.observeRepair("error")
		slog.Warn("repair synthesis failed", "system", system, "attempt", attempt, "error", err)
		return false, fault
	}

	ra.Outcome = synth.Commit(l.reg, p, synth.CommitOptions{Repair: system})
	ra.Replaced = len(ra.Outcome.Replaced) > 0
	if !ra.Replaced {
		ra.Error = fmt.Sprintf("proposal did not replace system %s", system)
	}
	rep.Repairs = append(rep.Repairs, ra)

	if ra.Replaced {
		l.engine.Forget(system)
		l.observeRepair("replaced")
	} else {
		l.observeRepair("rejected")
	}
	slog.Info("repair attempt",
		"system", system,
		"attempt", attempt,
		"replaced", ra.Replaced)
	return ra.Replaced, fault
}

// diagnose refreshes the report's diagnostics, entering DIAGNOSE unless it
// is already the current stage.
func (l *Loop) diagnose(rep *Report) *diagnose.Report {
	if n := len(rep.Stages); n == 0 || rep.Stages[n-1] != StageDiagnose {
		rep.enter(StageDiagnose)
	}
	rep.Diagnostics = diagnose.Run(l.reg)
	return rep.Diagnostics
}

func (l *Loop) publish(requestID string, diag *diagnose.Report) *View {
	l.version++
	v := &View{
		RequestID:   requestID,
		Version:     l.version,
		Tick:        l.engine.Clock().Current(),
		LastTicks:   l.engine.Clock().LastTicks(),
		Registry:    l.reg.Snapshot(),
		World:       l.world.Snapshot(),
		Aliases:     maps.Clone(l.aliases),
		Diagnostics: diag,
	}
	l.view.Store(v)
	return v
}

func (l *Loop) observeSynthesis(err error, d time.Duration) {
	if l.recorder == nil {
		return
	}
	switch {
	case err == nil:
		l.recorder.ObserveSynthesis("ok", d)
	case ir.IsCode(err, ir.CodeSynthesisTimeout):
		l.recorder.ObserveSynthesis("timeout", d)
	default:
		l.recorder.ObserveSynthesis("error", d)
	}
}

func (l *Loop) observeRepair(outcome string) {
	if l.recorder != nil {
		l.recorder.ObserveRepair(outcome)
	}
}
