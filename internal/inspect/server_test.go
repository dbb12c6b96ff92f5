package inspect

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/engine"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/observability"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/synth"
	"github.com/roach88/simloom/internal/world"
)

const moveLogic = `for _, e := range entities {
	w.Set(e, "Position", "x", w.Num(e, "Position", "x")+w.Num(e, "Velocity", "dx"))
}`

func sampleView() *loop.View {
	return &loop.View{
		RequestID: "req-7",
		Version:   3,
		Tick:      12,
		Registry: ir.RegistrySnapshot{
			Components: []ir.ComponentDef{
				{Name: "Position", Properties: []ir.Property{{Name: "x", Type: ir.TypeNumber}}},
				{Name: "Velocity", Properties: []ir.Property{{Name: "dx", Type: ir.TypeNumber, Default: 1}}},
			},
			Systems: []ir.SystemDef{
				{Name: "Move", RequiredComponents: []string{"Position", "Velocity"}, Logic: moveLogic, RunCount: 12},
				{Name: "Orphan", RequiredComponents: []string{"Ghost"}, Logic: "_ = entities"},
			},
		},
		World: world.Snapshot{
			NextID: 3,
			Entities: []world.EntityRecord{
				{ID: 1, Components: map[string]map[string]any{"Position": {"x": 12.0}, "Velocity": {"dx": 1.0}}},
				{ID: 2, Components: map[string]map[string]any{"Position": {"x": 0.0}}},
			},
			Relations: []world.RelationRecord{{Kind: "follows", Source: 2, Target: 1}},
		},
		Aliases: map[string]world.Entity{"leader": 1},
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestRouter_Catalog(t *testing.T) {
	h := NewRouter(SourceFunc(sampleView))

	rec, body := get(t, h, "/api/components")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, "components", body)

	rec, body = get(t, h, "/api/systems")
	require.Equal(t, http.StatusOK, rec.Code)
	systems := decode[[]ir.SystemDef](t, body)
	require.Len(t, systems, 2)
	assert.Equal(t, int64(12), systems[0].RunCount)

	rec, body = get(t, h, "/api/systems/Move")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, moveLogic, decode[ir.SystemDef](t, body).Logic)

	rec, _ = get(t, h, "/api/components/Velocity")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = get(t, h, "/api/systems/Ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `system "Ghost" is not registered`, decode[map[string]string](t, body)["error"])

	rec, _ = get(t, h, "/api/components/Ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Entities(t *testing.T) {
	h := NewRouter(SourceFunc(sampleView))

	_, body := get(t, h, "/api/entities")
	assert.Len(t, decode[[]world.EntityRecord](t, body), 2)

	_, body = get(t, h, "/api/entities?component=Position&component=Velocity")
	movers := decode[[]world.EntityRecord](t, body)
	require.Len(t, movers, 1)
	assert.Equal(t, world.Entity(1), movers[0].ID)

	_, body = get(t, h, "/api/entities?component=Ghost")
	assert.Equal(t, "[]", string(body))

	rec, body := get(t, h, "/api/entities/2")
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[struct {
		Entity    world.EntityRecord     `json:"entity"`
		Relations []world.RelationRecord `json:"relations"`
	}](t, body)
	assert.Equal(t, world.Entity(2), one.Entity.ID)
	assert.Equal(t, []world.RelationRecord{{Kind: "follows", Source: 2, Target: 1}}, one.Relations)

	rec, _ = get(t, h, "/api/entities/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = get(t, h, "/api/entities/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_DiagnosticsAndSnapshot(t *testing.T) {
	h := NewRouter(SourceFunc(sampleView))

	_, body := get(t, h, "/api/diagnostics")
	report := decode[struct {
		Systems []struct {
			Name              string   `json:"name"`
			MissingComponents []string `json:"missing_components"`
		} `json:"systems"`
	}](t, body)
	require.Len(t, report.Systems, 2)
	assert.Equal(t, []string{"Ghost"}, report.Systems[1].MissingComponents)

	_, body = get(t, h, "/api/snapshot")
	snap := decode[loop.View](t, body)
	assert.Equal(t, uint64(3), snap.Version)
	assert.Equal(t, world.Entity(1), snap.Aliases["leader"])

	rec, body := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":3,"tick":12}`, string(body))
}

func TestRouter_ReadOnly(t *testing.T) {
	h := NewRouter(SourceFunc(sampleView))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/components", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	m := observability.NewMetrics()
	h := NewRouter(SourceFunc(sampleView),
		WithMetrics(m),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	get(t, h, "/api/systems/Move")
	rec, body := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `simloom_http_requests_total{method="GET",route="/api/systems/{name}",status="200"} 1`)
}

func TestRouter_ServesLiveLoop(t *testing.T) {
	reg := registry.New()
	w := world.New(reg)
	eng := engine.New(reg)
	raw, err := synth.EncodePayload(sampleView().Registry.Components, sampleView().Registry.Systems[:1])
	require.NoError(t, err)
	l := loop.New(reg, w, eng, synth.NewGateway(synth.Static(raw), synth.WithTimeout(time.Second)))

	h := NewRouter(l)
	_, body := get(t, h, "/api/systems")
	assert.Equal(t, "[]", string(body))

	_, err = l.Handle(context.Background(), loop.Request{
		Intent: "movement",
		Commands: []loop.Command{{Op: loop.OpCreate, Components: map[string]map[string]any{
			"Position": {"x": 0}, "Velocity": {"dx": 2},
		}}},
		Ticks: []loop.TickSpec{{System: "Move", Count: 2}},
	})
	require.NoError(t, err)

	_, body = get(t, h, "/api/entities")
	ents := decode[[]world.EntityRecord](t, body)
	require.Len(t, ents, 1)
	assert.Equal(t, 4.0, ents[0].Components["Position"]["x"])
}
