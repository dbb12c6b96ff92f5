package harness

import (
	"slices"

	"github.com/roach88/simloom/internal/loop"
)

// TraceEvent is the deterministic digest of one flow request's report.
// Durations, hashes and free-form error text are left out so traces are
// stable across runs.
type TraceEvent struct {
	RequestID  string         `json:"request_id"`
	Stages     []loop.Stage   `json:"stages"`
	Registered []string       `json:"registered,omitempty"`
	Replaced   []string       `json:"replaced,omitempty"`
	Rejected   []string       `json:"rejected,omitempty"`
	Commands   []CommandTrace `json:"commands,omitempty"`
	Ticks      []BatchTrace   `json:"ticks,omitempty"`
	Repairs    []RepairTrace  `json:"repairs,omitempty"`
	Broken     []string       `json:"broken,omitempty"`
	Tick       int64          `json:"tick"`
	Failed     bool           `json:"failed"`
}

// CommandTrace is one applied command.
type CommandTrace struct {
	Op     loop.Op `json:"op"`
	Entity uint64  `json:"entity,omitempty"`
	Failed bool    `json:"failed,omitempty"`
}

// BatchTrace is one tick batch.
type BatchTrace struct {
	System    string `json:"system"`
	Requested int    `json:"requested"`
	Completed int    `json:"completed"`
	Faulted   bool   `json:"faulted,omitempty"`
}

// RepairTrace is one repair attempt.
type RepairTrace struct {
	System   string `json:"system"`
	Attempt  int    `json:"attempt"`
	Replaced bool   `json:"replaced"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow request, in order.
	Trace []TraceEvent `json:"trace"`

	// Reports are the raw flow reports, parallel to Trace.
	Reports []*loop.Report `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddReport digests rep into the trace.
func (r *Result) AddReport(rep *loop.Report) {
	r.Reports = append(r.Reports, rep)
	r.Trace = append(r.Trace, traceOf(rep))
}

func traceOf(rep *loop.Report) TraceEvent {
	ev := TraceEvent{
		RequestID: rep.RequestID,
		Stages:    slices.Clone(rep.Stages),
		Tick:      rep.Tick,
		Failed:    rep.Failed(),
	}
	if p := rep.Proposal; p != nil {
		ev.Registered = append(ev.Registered, p.Components...)
		ev.Registered = append(ev.Registered, p.Systems...)
		ev.Replaced = append(ev.Replaced, p.Replaced...)
		for _, e := range p.Rejected {
			ev.Rejected = append(ev.Rejected, string(e.Kind)+" "+e.Name)
		}
	}
	for _, c := range rep.Commands {
		ev.Commands = append(ev.Commands, CommandTrace{Op: c.Op, Entity: uint64(c.Entity), Failed: c.Error != ""})
	}
	for _, b := range rep.Ticks {
		ev.Ticks = append(ev.Ticks, BatchTrace{
			System:    b.System,
			Requested: b.Requested,
			Completed: b.Completed,
			Faulted:   b.Error != nil,
		})
	}
	for _, ra := range rep.Repairs {
		ev.Repairs = append(ev.Repairs, RepairTrace{System: ra.System, Attempt: ra.Attempt, Replaced: ra.Replaced})
		if ra.Outcome != nil {
			ev.Replaced = append(ev.Replaced, ra.Outcome.Replaced...)
		}
	}
	if rep.Diagnostics != nil {
		ev.Broken = rep.Diagnostics.Broken()
	}
	return ev
}
