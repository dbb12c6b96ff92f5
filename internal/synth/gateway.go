package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/simloom/internal/compiler"
	"github.com/roach88/simloom/internal/ir"
)

// DefaultTimeout bounds a single synthesis call.
const DefaultTimeout = 60 * time.Second

// EntryKind distinguishes proposal entries.
type EntryKind string

const (
	EntryComponent EntryKind = "component"
	EntrySystem    EntryKind = "system"
)

// Entry is one proposed definition and its verdict.
type Entry struct {
	Kind      EntryKind                  `json:"kind"`
	Index     int                        `json:"index"`
	Name      string                     `json:"name"`
	Component *ir.ComponentDef           `json:"component,omitempty"`
	System    *ir.SystemDef              `json:"system,omitempty"`
	Accepted  bool                       `json:"accepted"`
	Code      ir.ErrorCode               `json:"code,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Issues    []compiler.ValidationError `json:"issues,omitempty"`
}

// reject marks the entry rejected with a code and reason.
func (e *Entry) reject(code ir.ErrorCode, reason string) {
	e.Accepted = false
	e.Code = code
	e.Reason = reason
}

// Proposal is a validated synthesis response.
type Proposal struct {
	Model      string          `json:"model,omitempty"`
	Repair     string          `json:"repair,omitempty"`
	Components []Entry         `json:"components"`
	Systems    []Entry         `json:"systems"`
	Raw        json.RawMessage `json:"-"`
}

// Accepted counts accepted entries.
func (p *Proposal) Accepted() int {
	n := 0
	for _, e := range p.Components {
		if e.Accepted {
			n++
		}
	}
	for _, e := range p.Systems {
		if e.Accepted {
			n++
		}
	}
	return n
}

// Rejected returns the rejected entries, components first.
func (p *Proposal) Rejected() []Entry {
	var out []Entry
	for _, e := range append(append([]Entry{}, p.Components...), p.Systems...) {
		if !e.Accepted {
			out = append(out, e)
		}
	}
	return out
}

// Gateway validates synthesizer output before anything reaches a registry.
type Gateway struct {
	synth   Synthesizer
	timeout time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTimeout sets the per-call synthesis deadline.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGateway wraps a synthesizer.
func NewGateway(s Synthesizer, opts ...GatewayOption) *Gateway {
	g := &Gateway{synth: s, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type synthResult struct {
	raw json.RawMessage
	err error
}

// Propose calls the synthesizer and validates its payload entry by entry.
//
// A deadline yields a SynthesisTimeoutError and no proposal. A payload that
// is not a JSON object is a whole-response SchemaError. Otherwise every entry
// is accepted or rejected on its own.
func (g *Gateway) Propose(ctx context.Context, req Request) (*Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan synthResult, 1)
	go func() {
		raw, err := g.synth.Synthesize(ctx, req)
		done <- synthResult{raw: raw, err: err}
	}()

	var res synthResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			slog.Warn("synthesis timed out", "subject", req.Subject(), "timeout", g.timeout)
			return nil, ir.SynthesisTimeout(req.Subject(), res.err)
		}
		return nil, fmt.Errorf("synthesize: %w", res.err)
	}

	p, err := Decode(req.Registry, res.raw)
	if err != nil {
		return nil, err
	}
	p.Model = req.Model
	if req.Repair != nil {
		p.Repair = req.Repair.System
	}

	slog.Debug("synthesis proposal",
		"subject", req.Subject(),
		"accepted", p.Accepted(),
		"rejected", len(p.Rejected()),
		"duration", time.Since(start))
	return p, nil
}

// payload is the top-level response shape; entries stay raw for per-entry checks.
type payload struct {
	Components []json.RawMessage `json:"components"`
	Systems    []json.RawMessage `json:"systems"`
}

// Decode validates a raw payload against the contract and the registry
// snapshot it was produced for.
func Decode(existing ir.RegistrySnapshot, raw json.RawMessage) (*Proposal, error) {
	raw = stripFence(raw)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ir.SchemaErrorf("synthesis", "response is not a JSON object")
	}
	var pl payload
	if err := json.Unmarshal(trimmed, &pl); err != nil {
		return nil, ir.SchemaErrorf("synthesis", "malformed response: %v", err)
	}

	c, err := loadContract()
	if err != nil {
		return nil, err
	}

	p := &Proposal{
		Raw:        raw,
		Components: make([]Entry, len(pl.Components)),
		Systems:    make([]Entry, len(pl.Systems)),
	}

	var comps []ir.ComponentDef
	var compIdx []int
	for i, entry := range pl.Components {
		e := Entry{Kind: EntryComponent, Index: i, Name: peekName(entry)}
		if err := c.check(c.component, entry); err != nil {
			e.reject(ir.CodeSchema, err.Error())
		} else {
			var wc wireComponent
			if err := json.Unmarshal(entry, &wc); err != nil {
				e.reject(ir.CodeSchema, err.Error())
			} else {
				def := wc.def()
				e.Component = &def
				e.Accepted = true
				comps = append(comps, def)
				compIdx = append(compIdx, i)
			}
		}
		p.Components[i] = e
	}

	var systems []ir.SystemDef
	var sysIdx []int
	for i, entry := range pl.Systems {
		e := Entry{Kind: EntrySystem, Index: i, Name: peekName(entry)}
		if err := c.check(c.system, entry); err != nil {
			e.reject(ir.CodeSchema, err.Error())
		} else {
			var ws wireSystem
			if err := json.Unmarshal(entry, &ws); err != nil {
				e.reject(ir.CodeSchema, err.Error())
			} else {
				def := ws.def()
				e.System = &def
				e.Accepted = true
				systems = append(systems, def)
				sysIdx = append(sysIdx, i)
			}
		}
		p.Systems[i] = e
	}

	res := compiler.ValidateBatch(existing, comps, systems)
	for j, issues := range res.Components {
		if len(issues) > 0 {
			e := &p.Components[compIdx[j]]
			e.Issues = issues
			e.reject(codeFor(issues), joinIssues(issues))
		}
	}
	for j, issues := range res.Systems {
		if len(issues) > 0 {
			e := &p.Systems[sysIdx[j]]
			e.Issues = issues
			e.reject(codeFor(issues), joinIssues(issues))
		}
	}
	return p, nil
}

// codeFor maps compiler codes onto the shared error kinds.
func codeFor(issues []compiler.ValidationError) ir.ErrorCode {
	for _, is := range issues {
		switch is.Code {
		case compiler.ErrUndeclaredComponent:
			return ir.CodeMissingDependency
		case compiler.ErrComponentExists, compiler.ErrDuplicateName:
			return ir.CodeDuplicateName
		}
	}
	return ir.CodeSchema
}

func joinIssues(issues []compiler.ValidationError) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.Error()
	}
	return strings.Join(parts, "; ")
}

// peekName extracts the name field of an entry for reporting, if any.
func peekName(entry json.RawMessage) string {
	var probe struct {
		Name any `json:"name"`
	}
	if json.Unmarshal(entry, &probe) != nil {
		return ""
	}
	if s, ok := probe.Name.(string); ok {
		return s
	}
	return ""
}

// stripFence removes a surrounding markdown code fence, which generation
// models add even when asked for bare JSON.
func stripFence(raw json.RawMessage) json.RawMessage {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return json.RawMessage(s)
}
