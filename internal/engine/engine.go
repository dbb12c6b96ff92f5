package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/sandbox"
	"github.com/roach88/simloom/internal/world"
)

const (
	// DefaultTickTimeout bounds the wall-clock time of one tick.
	DefaultTickTimeout = 2 * time.Second

	// DefaultMaxOps bounds the primitive calls of one tick.
	DefaultMaxOps = 1_000_000
)

// Limits bounds a single tick. Zero values disable the bound.
type Limits struct {
	Timeout time.Duration
	MaxOps  int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{Timeout: DefaultTickTimeout, MaxOps: DefaultMaxOps}
}

// Recorder observes finished ticks. Implemented by observability.Metrics.
type Recorder interface {
	ObserveTick(system, outcome string, d time.Duration)
}

// Engine executes registered systems.
type Engine struct {
	reg      *registry.Registry
	clock    *Clock
	limits   Limits
	recorder Recorder

	mu       sync.Mutex
	programs map[string]*sandbox.Program
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLimits sets the per-tick limits.
func WithLimits(l Limits) EngineOption {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithClock sets the tick clock. Used to resume a restored workspace.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRecorder reports every tick to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// New creates an Engine reading systems from reg.
func New(reg *registry.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		reg:      reg,
		clock:    NewClock(),
		limits:   DefaultLimits(),
		programs: make(map[string]*sandbox.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clock returns the tick clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// TickResult reports one tick.
type TickResult struct {
	System   string          `json:"system"`
	Tick     int64           `json:"tick"`
	Entities int             `json:"entities"`
	Ops      int             `json:"ops"`
	Logs     []string        `json:"logs,omitempty"`
	Error    *ir.ErrorRecord `json:"error,omitempty"`
	Duration time.Duration   `json:"-"`
}

// Failed reports whether the tick faulted.
func (r *TickResult) Failed() bool {
	return r.Error != nil
}

// BatchResult reports ExecuteBatch.
type BatchResult struct {
	System    string          `json:"system"`
	Requested int             `json:"requested"`
	Completed int             `json:"completed"`
	Ticks     []*TickResult   `json:"ticks"`
	Error     *ir.ErrorRecord `json:"error,omitempty"`
}

// Execute runs one tick of system over w.
//
// An unknown system returns a NotFoundError and runs nothing. A cancelled
// ctx returns ctx.Err() without recording a fault. Any other failure is
// rolled back, recorded on the system and returned as a *RuntimeError
// alongside the failed TickResult.
func (e *Engine) Execute(ctx context.Context, system string, w *world.World) (*TickResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sys, ok := e.reg.GetSystem(system)
	if !ok {
		return nil, ir.NotFound("system", system)
	}

	start := time.Now()
	res := &TickResult{System: system, Tick: e.clock.Next(system)}

	if missing := e.missing(sys); len(missing) > 0 {
		return e.fail(res, sys, ir.MissingDependency(system, missing), start)
	}
	prog, err := e.program(sys)
	if err != nil {
		return e.fail(res, sys, err, start)
	}

	entities := w.Query(sys.RequiredComponents...)
	res.Entities = len(entities)

	tctx, cancel := e.tickContext(ctx)
	defer cancel()

	c := sandbox.NewCtx(w, system, res.Tick, e.limits.MaxOps)
	txn := w.Begin()
	err = prog.Run(tctx, c, entities)
	res.Ops = c.Ops()
	res.Logs = c.Logs()

	if err != nil {
		txn.Rollback()
		if f, ok := sandbox.AsFault(err); ok && f.Cause == sandbox.CauseTimeout {
			e.Forget(system)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return e.fail(res, sys, err, start)
	}
	txn.Commit()

	if err := e.reg.RecordSuccess(system); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	e.observe(system, "ok", res.Duration)
	slog.Debug("tick completed",
		"system", system,
		"tick", res.Tick,
		"entities", res.Entities,
		"ops", res.Ops)
	return res, nil
}

// ExecuteBatch runs up to n ticks of system, stopping at the first fault.
// Ticks completed before the fault keep their effects.
func (e *Engine) ExecuteBatch(ctx context.Context, system string, w *world.World, n int) (*BatchResult, error) {
	b := &BatchResult{System: system, Requested: n, Ticks: []*TickResult{}}
	for i := 0; i < n; i++ {
		res, err := e.Execute(ctx, system, w)
		if res != nil {
			b.Ticks = append(b.Ticks, res)
		}
		if err != nil {
			if res != nil {
				b.Error = res.Error
			}
			return b, err
		}
		b.Completed++
	}
	return b, nil
}

// Forget drops the cached program for system.
func (e *Engine) Forget(system string) {
	e.mu.Lock()
	delete(e.programs, system)
	e.mu.Unlock()
}

// program returns the compiled logic for sys, compiling on a cache miss or
// when the logic changed since the last compile.
func (e *Engine) program(sys ir.SystemDef) (*sandbox.Program, error) {
	hash := ir.LogicHash(sys.Logic)

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[sys.Name]; ok && p.Hash() == hash {
		return p, nil
	}
	p, err := sandbox.Compile(sys.Logic)
	if err != nil {
		delete(e.programs, sys.Name)
		return nil, err
	}
	e.programs[sys.Name] = p
	return p, nil
}

func (e *Engine) missing(sys ir.SystemDef) []string {
	var out []string
	for _, name := range sys.RequiredComponents {
		if _, ok := e.reg.GetComponent(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) tickContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.limits.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.limits.Timeout)
}

// fail records cause on the system and builds the failed result.
func (e *Engine) fail(res *TickResult, sys ir.SystemDef, cause error, start time.Time) (*TickResult, error) {
	code := codeFor(cause)
	rec := &ir.ErrorRecord{Kind: ir.CodeRuntimeFault, Message: cause.Error(), Tick: res.Tick}
	if f, ok := sandbox.AsFault(cause); ok {
		rec.Message = f.Message
		rec.Line = f.Line
		rec.Excerpt = sandbox.Excerpt(sys.Logic, f.Line)
	}
	var ie *ir.Error
	if code == ErrCodeMissingDependency && errors.As(cause, &ie) {
		rec.Kind = ir.CodeMissingDependency
		rec.Message = "required components are not registered: " + strings.Join(ie.Missing, ", ")
	}
	res.Error = rec
	res.Duration = time.Since(start)

	if err := e.reg.RecordError(sys.Name, rec); err != nil {
		return nil, err
	}
	e.observe(sys.Name, strings.ToLower(string(code)), res.Duration)
	slog.Info("tick faulted",
		"system", sys.Name,
		"tick", res.Tick,
		"code", code,
		"line", rec.Line,
		"error", rec.Message)
	return res, &RuntimeError{Code: code, System: sys.Name, Tick: res.Tick, Record: rec.Clone(), Err: cause}
}

func (e *Engine) observe(system, outcome string, d time.Duration) {
	if e.recorder != nil {
		e.recorder.ObserveTick(system, outcome, d)
	}
}
