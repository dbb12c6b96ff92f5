// Package inspect serves a read-only HTTP view of a loop's last published
// state: the registry catalog, the world snapshot and diagnostics.
package inspect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/simloom/internal/diagnose"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/observability"
	"github.com/roach88/simloom/internal/world"
)

// Source publishes immutable views. *loop.Loop implements it.
type Source interface {
	View() *loop.View
}

// SourceFunc adapts a function to Source.
type SourceFunc func() *loop.View

// View implements Source.
func (f SourceFunc) View() *loop.View { return f() }

type options struct {
	metrics *observability.Metrics
	log     *slog.Logger
}

// Option configures the router.
type Option func(*options)

// WithMetrics records request metrics and mounts /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger logs every request to log.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

type handler struct {
	src Source
}

// NewRouter returns the inspection handler. Every route is GET-only.
func NewRouter(src Source, opts ...Option) http.Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	h := &handler{src: src}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	if o.log != nil {
		r.Use(observability.RequestLogger(o.log))
	}
	if o.metrics != nil {
		r.Use(o.metrics.RequestMetrics)
		r.Method(http.MethodGet, "/metrics", o.metrics.Handler())
	}

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Get("/components", h.handleComponents)
		api.Get("/components/{name}", h.handleComponent)
		api.Get("/systems", h.handleSystems)
		api.Get("/systems/{name}", h.handleSystem)
		api.Get("/entities", h.handleEntities)
		api.Get("/entities/{id}", h.handleEntity)
		api.Get("/diagnostics", h.handleDiagnostics)
		api.Get("/snapshot", h.handleSnapshot)
	})
	return r
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	v := h.src.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": v.Version,
		"tick":    v.Tick,
	})
}

func (h *handler) handleComponents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.src.View().Registry.Components))
}

func (h *handler) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, c := range h.src.View().Registry.Components {
		if c.Name == name {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "component %q is not registered", name)
}

func (h *handler) handleSystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.src.View().Registry.Systems))
}

func (h *handler) handleSystem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sys, ok := h.src.View().Registry.System(name)
	if !ok {
		writeError(w, http.StatusNotFound, "system %q is not registered", name)
		return
	}
	writeJSON(w, http.StatusOK, sys)
}

// handleEntities lists entities. ?component=A&component=B keeps only
// entities holding every named component.
func (h *handler) handleEntities(w http.ResponseWriter, r *http.Request) {
	want := r.URL.Query()["component"]
	out := []world.EntityRecord{}
	for _, rec := range h.src.View().World.Entities {
		if holdsAll(rec, want) {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleEntity(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id %q", raw)
		return
	}
	v := h.src.View()
	for _, rec := range v.World.Entities {
		if rec.ID == world.Entity(id) {
			writeJSON(w, http.StatusOK, map[string]any{
				"entity":    rec,
				"relations": relationsOf(v.World, rec.ID),
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "entity %d does not exist", id)
}

// handleDiagnostics returns the report published with the view, or runs a
// fresh diagnosis of the published registry when none was attached.
func (h *handler) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	v := h.src.View()
	report := v.Diagnostics
	if report == nil {
		report = diagnose.RunSnapshot(v.Registry)
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.src.View())
}

func holdsAll(rec world.EntityRecord, components []string) bool {
	for _, c := range components {
		if _, ok := rec.Components[c]; !ok {
			return false
		}
	}
	return true
}

func relationsOf(snap world.Snapshot, id world.Entity) []world.RelationRecord {
	out := []world.RelationRecord{}
	for _, rel := range snap.Relations {
		if rel.Source == id || rel.Target == id {
			out = append(out, rel)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

// writeJSON writes canonical JSON so responses are byte-stable.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := ir.MarshalCanonical(payload)
	if err != nil {
		slog.Error("inspect: encode response", "error", err)
		body, _ = json.Marshal(map[string]string{"error": "encode response"})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
