package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/roach88/simloom/internal/synth"
)

// ErrScriptExhausted is returned once every scripted step has been used.
var ErrScriptExhausted = errors.New("scripted synthesizer: script exhausted")

// Step is one scripted synthesizer response.
type Step struct {
	// Payload is returned as the raw response.
	Payload string

	// Err is returned instead of a payload.
	Err error

	// Block waits for the request context to end, simulating a hung call.
	Block bool
}

// ScriptedSynthesizer answers requests from a fixed script and records
// every request it receives.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedSynthesizer struct {
	mu       sync.Mutex
	steps    []Step
	requests []synth.Request
}

// NewScriptedSynthesizer creates a synthesizer that answers with steps in order.
func NewScriptedSynthesizer(steps ...Step) *ScriptedSynthesizer {
	return &ScriptedSynthesizer{steps: steps}
}

// Payloads is shorthand for a script of plain payloads.
func Payloads(payloads ...string) *ScriptedSynthesizer {
	steps := make([]Step, len(payloads))
	for i, p := range payloads {
		steps[i] = Step{Payload: p}
	}
	return NewScriptedSynthesizer(steps...)
}

// Synthesize implements synth.Synthesizer.
func (s *ScriptedSynthesizer) Synthesize(ctx context.Context, req synth.Request) (json.RawMessage, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.steps) {
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := s.steps[len(s.requests)-1]
	s.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return json.RawMessage(step.Payload), nil
}

// Requests returns a copy of the requests received so far.
func (s *ScriptedSynthesizer) Requests() []synth.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]synth.Request(nil), s.requests...)
}
