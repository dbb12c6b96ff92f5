package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/synth"
)

func TestFakeClock_Steps(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewFakeClock(start, time.Second)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Second), clock.Now())
	assert.Equal(t, start.Add(2*time.Second), clock.Peek())

	clock.Reset()
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0).UTC(), time.Millisecond)

	const goroutines = 50
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, time.Unix(0, 0).UTC().Add(goroutines*time.Millisecond), clock.Peek())
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "req-1", gen.Generate())
	assert.Equal(t, "req-2", gen.Generate())

	named := NewSequenceGenerator("scn")
	assert.Equal(t, "scn-1", named.Generate())
}

func TestScriptedSynthesizer(t *testing.T) {
	boom := errors.New("boom")
	s := NewScriptedSynthesizer(Step{Payload: `{}`}, Step{Err: boom})
	ctx := context.Background()

	raw, err := s.Synthesize(ctx, synth.Request{Intent: "one"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	_, err = s.Synthesize(ctx, synth.Request{Intent: "two"})
	assert.ErrorIs(t, err, boom)

	_, err = s.Synthesize(ctx, synth.Request{Intent: "three"})
	assert.ErrorIs(t, err, ErrScriptExhausted)

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "two", reqs[1].Intent)
}

func TestScriptedSynthesizer_Block(t *testing.T) {
	s := NewScriptedSynthesizer(Step{Block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Synthesize(ctx, synth.Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
