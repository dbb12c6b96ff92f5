package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/simloom/internal/engine"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/observability"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/store"
	"github.com/roach88/simloom/internal/synth"
	"github.com/roach88/simloom/internal/synth/gemini"
	"github.com/roach88/simloom/internal/world"
)

// errNoSynthesizer is returned when a request needs synthesis but neither an
// API key nor a payload file was supplied.
var errNoSynthesizer = errors.New("no synthesizer configured: set SIMLOOM_API_KEY or pass --payload")

// session is one workspace opened for the duration of a command.
type session struct {
	id       string
	store    *store.Store
	reg      *registry.Registry
	world    *world.World
	engine   *engine.Engine
	loop     *loop.Loop
	metrics  *observability.Metrics
	restored bool
}

// openSession opens the workspace database and restores the configured
// workspace, or starts an empty one. s is used for synthesis; nil falls
// back to the configured collaborator.
func openSession(ctx context.Context, opts *RootOptions, s synth.Synthesizer) (*session, error) {
	cfg := opts.Config
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	sess := &session{
		id:      cfg.Workspace,
		store:   st,
		reg:     registry.New(),
		metrics: observability.NewMetrics(),
	}
	sess.world = world.New(sess.reg)

	ws, err := st.LoadWorkspace(ctx, cfg.Workspace)
	switch {
	case err == nil:
		if err := sess.restore(ws); err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to restore workspace", err)
		}
	case ir.IsCode(err, ir.CodeNotFound):
		ws = &store.Workspace{}
		slog.Debug("starting new workspace", "workspace", cfg.Workspace)
	default:
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load workspace", err)
	}

	sess.engine = engine.New(sess.reg,
		engine.WithClock(engine.NewClockAt(ws.Tick)),
		engine.WithLimits(engine.Limits{Timeout: cfg.TickTimeout, MaxOps: cfg.MaxOps}),
		engine.WithRecorder(sess.metrics),
	)

	if s == nil {
		if s, err = opts.synthesizer(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	gw := synth.NewGateway(s, synth.WithTimeout(cfg.SynthesisTimeout))

	sess.loop = loop.New(sess.reg, sess.world, sess.engine, gw,
		loop.WithModel(cfg.Model),
		loop.WithMaxRepairs(cfg.MaxRepairs),
		loop.WithRecorder(sess.metrics),
		loop.WithSink(st.Sink(cfg.Workspace)),
		loop.WithAliases(ws.Aliases),
	)
	return sess, nil
}

func (s *session) restore(ws *store.Workspace) error {
	if err := s.reg.Restore(ws.Registry); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := s.world.Restore(ws.World); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	s.restored = true
	slog.Debug("workspace restored",
		"workspace", s.id,
		"tick", ws.Tick,
		"components", len(ws.Registry.Components),
		"systems", len(ws.Registry.Systems),
		"entities", len(ws.World.Entities),
	)
	return nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// synthesizer picks the synthesis collaborator: the test override, then
// Gemini when an API key is configured. Without either, synthesis fails
// with errNoSynthesizer and non-synthesis requests still run.
func (o *RootOptions) synthesizer(ctx context.Context) (synth.Synthesizer, error) {
	if o.Synthesizer != nil {
		return o.Synthesizer, nil
	}
	if o.Config.APIKey != "" {
		client, err := gemini.New(ctx, o.Config.APIKey)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create synthesis client", err)
		}
		return client, nil
	}
	return synth.SynthesizerFunc(func(context.Context, synth.Request) (json.RawMessage, error) {
		return nil, errNoSynthesizer
	}), nil
}

// staticPayload reads a synthesis payload file.
func staticPayload(path string) (synth.Synthesizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeReadFailed+": failed to read payload", err)
	}
	return synth.Static(raw), nil
}
