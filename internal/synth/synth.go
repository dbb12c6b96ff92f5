// Package synth is the gateway between natural-language intent and registry
// definitions.
//
// A Synthesizer is the external collaborator that turns a Request into a JSON
// payload. The Gateway calls it under a deadline, checks every entry of the
// payload against a fixed CUE contract and the compiler's semantic rules, and
// produces a Proposal whose entries are individually accepted or rejected.
// Commit applies the accepted entries to a registry.
package synth

import (
	"context"
	"encoding/json"

	"github.com/roach88/simloom/internal/ir"
)

// Synthesizer produces a definitions payload for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (json.RawMessage, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Synthesize calls f(ctx, req).
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// Request is what the synthesis collaborator receives.
type Request struct {
	// Intent is the natural-language description of what to build or change.
	Intent string `json:"intent"`

	// Registry is the current catalog, so the collaborator can reuse names.
	Registry ir.RegistrySnapshot `json:"registry"`

	// Model names the generation model. It is passed per call, never global.
	Model string `json:"model,omitempty"`

	// Repair is set when the request is scoped to fixing one system.
	Repair *RepairContext `json:"repair,omitempty"`
}

// RepairContext scopes a request to one broken system.
type RepairContext struct {
	System    string          `json:"system"`
	Logic     string          `json:"logic"`
	LastError *ir.ErrorRecord `json:"last_error,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Subject names what a request is about, for error reporting.
func (r Request) Subject() string {
	if r.Repair != nil {
		return r.Repair.System
	}
	return "synthesis"
}

// Static is a Synthesizer that always returns the same payload.
type Static json.RawMessage

// Synthesize returns the fixed payload.
func (s Static) Synthesize(ctx context.Context, _ Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}
