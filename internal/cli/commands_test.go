package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/store"
	"github.com/roach88/simloom/internal/synth"
	"github.com/roach88/simloom/internal/world"
)

const spawnRequest = `intent: entities with a velocity move along x
commands:
  - op: create
    as: mover
    components:
      Position: {x: 0}
      Velocity: {dx: 1}
ticks:
  - system: Move
    count: 3
`

type envelope[T any] struct {
	Status    string    `json:"status"`
	Data      T         `json:"data"`
	Error     *CLIError `json:"error"`
	RequestID string    `json:"request_id"`
}

func decodeEnvelope[T any](t *testing.T, out string) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

// workspace holds the paths shared by the commands of one test.
type workspace struct {
	dir string
	db  string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	return workspace{dir: dir, db: filepath.Join(dir, "sim.db")}
}

func (w workspace) run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	return execute(t, opts, append([]string{"--db", w.db, "--workspace", "lab"}, args...)...)
}

func TestApply_DefinitionsThenTicks(t *testing.T) {
	ws := newWorkspace(t)
	req := writeFile(t, ws.dir, "spawn.yaml", spawnRequest)

	out, err := ws.run(t, nil, "--format", "json", "apply", req, "--defs", defsDir(t, validDefs))
	require.NoError(t, err, out)

	env := decodeEnvelope[loop.Report](t, out)
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, env.Data.RequestID, env.RequestID)
	assert.Equal(t, []string{"Position", "Velocity"}, env.Data.Proposal.Components)
	assert.Equal(t, []string{"Move"}, env.Data.Proposal.Systems)
	assert.Equal(t, int64(3), env.Data.Tick)

	// A second invocation resumes the saved workspace: alias, world and clock.
	out, err = ws.run(t, nil, "--format", "json", "apply", "--tick", "Move=2")
	require.NoError(t, err, out)
	env = decodeEnvelope[loop.Report](t, out)
	assert.Equal(t, int64(5), env.Data.Tick)

	out, err = ws.run(t, nil, "--format", "json", "snapshot")
	require.NoError(t, err)
	view := decodeEnvelope[loop.View](t, out).Data
	assert.Equal(t, world.Entity(1), view.Aliases["mover"])
	require.Len(t, view.World.Entities, 1)
	assert.Equal(t, 5.0, view.World.Entities[0].Components["Position"]["x"])
	sys, ok := view.Registry.System("Move")
	require.True(t, ok)
	assert.Equal(t, int64(5), sys.RunCount)
}

func TestApply_TextReport(t *testing.T) {
	ws := newWorkspace(t)
	req := writeFile(t, ws.dir, "spawn.yaml", spawnRequest)

	out, err := ws.run(t, nil, "apply", req, "--defs", defsDir(t, validDefs))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ request ")
	assert.Contains(t, out, "RECEIVE_INTENT → SYNTHESIZE → REGISTER → EXECUTE → REPORT")
	assert.Contains(t, out, "systems registered:    Move")
	assert.Contains(t, out, "ticks:    Move 3/3")
	assert.Contains(t, out, "tick 3, registry ")
}

func TestApply_PayloadFileWithRejection(t *testing.T) {
	ws := newWorkspace(t)
	raw, err := synth.EncodePayload(
		[]ir.ComponentDef{{Name: "Position", Properties: []ir.Property{{Name: "x", Type: ir.TypeNumber}}}},
		[]ir.SystemDef{{Name: "Bad", RequiredComponents: []string{"Ghost"}, Logic: "_ = entities"}},
	)
	require.NoError(t, err)
	payload := writeFile(t, ws.dir, "payload.json", string(raw))

	out, err := ws.run(t, nil, "apply", "--payload", payload, "--intent", "a bad system")
	require.NoError(t, err, "rejections are reported, not failures")
	assert.Contains(t, out, "components registered: Position")
	assert.Contains(t, out, "rejected system Bad")
	assert.Contains(t, out, "DIAGNOSE")
}

func TestApply_SynthesizerOverride(t *testing.T) {
	ws := newWorkspace(t)
	raw, err := synth.EncodePayload(
		[]ir.ComponentDef{{Name: "Heat", Properties: []ir.Property{{Name: "t", Type: ir.TypeNumber}}}}, nil)
	require.NoError(t, err)

	var seen synth.Request
	opts := &RootOptions{Synthesizer: synth.SynthesizerFunc(func(_ context.Context, req synth.Request) (json.RawMessage, error) {
		seen = req
		return raw, nil
	})}
	_, err = ws.run(t, opts, "--model", "model-x", "apply", "--intent", "things get hot")
	require.NoError(t, err)
	assert.Equal(t, "things get hot", seen.Intent)
	assert.Equal(t, "model-x", seen.Model)
}

func TestApply_Failures(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, nil, "apply")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "an empty request is a failed request")

	_, err = ws.run(t, nil, "apply", "--tick", "Move=zero")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = ws.run(t, nil, "apply", writeFile(t, ws.dir, "req.txt", "intent: x"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = ws.run(t, nil, "apply", writeFile(t, ws.dir, "req.yaml", "intnet: typo\n"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := ws.run(t, nil, "--format", "json", "apply", "--intent", "needs a model")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	env := decodeEnvelope[loop.Report](t, out)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Error.Message, "no synthesizer configured")

	out, err = ws.run(t, nil, "apply", "--tick", "Ghost=1")
	require.Error(t, err)
	assert.Contains(t, out, "✗ request ")
	assert.Contains(t, out, "error: ")
}

func TestDiagnose_BrokenAfterForcedUnregister(t *testing.T) {
	ws := newWorkspace(t)
	req := writeFile(t, ws.dir, "spawn.yaml", spawnRequest)
	_, err := ws.run(t, nil, "apply", req, "--defs", defsDir(t, validDefs))
	require.NoError(t, err)

	out, err := ws.run(t, nil, "diagnose")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ system Move")

	drop := writeFile(t, ws.dir, "drop.json", `{"commands": [{"op": "unregister", "name": "Velocity", "force": true}]}`)
	_, err = ws.run(t, nil, "apply", drop)
	require.NoError(t, err)

	out, err = ws.run(t, nil, "diagnose")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "broken systems: Move")
	assert.Contains(t, out, "✗ system Move")
	assert.Contains(t, out, "missing components: Velocity")
}

func TestSnapshot_OutputFile(t *testing.T) {
	ws := newWorkspace(t)
	req := writeFile(t, ws.dir, "spawn.yaml", spawnRequest)
	_, err := ws.run(t, nil, "apply", req, "--defs", defsDir(t, validDefs))
	require.NoError(t, err)

	path := filepath.Join(ws.dir, "snap.json")
	out, err := ws.run(t, nil, "snapshot", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "workspace lab at tick 3")
	assert.Contains(t, out, "Position {x:number}")
	assert.Contains(t, out, "Move requires [Position, Velocity] runs=3")
	assert.Contains(t, out, "#1 Position, Velocity")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var view loop.View
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, int64(3), view.Tick)
}

func TestWorkspaces(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, nil, "workspaces")
	require.NoError(t, err)
	assert.Contains(t, out, "no workspaces")

	req := writeFile(t, ws.dir, "spawn.yaml", spawnRequest)
	_, err = ws.run(t, nil, "apply", req, "--defs", defsDir(t, validDefs))
	require.NoError(t, err)

	out, err = ws.run(t, nil, "--format", "json", "workspaces")
	require.NoError(t, err)
	infos := decodeEnvelope[[]store.WorkspaceInfo](t, out).Data
	require.Len(t, infos, 1)
	assert.Equal(t, "lab", infos[0].ID)
	assert.Equal(t, int64(3), infos[0].Tick)
	assert.Equal(t, 1, infos[0].Reports)

	out, err = ws.run(t, nil, "--format", "json", "workspaces", "reports", "lab")
	require.NoError(t, err)
	reports := decodeEnvelope[[]store.StoredReport](t, out).Data
	require.Len(t, reports, 1)
	var rep loop.Report
	require.NoError(t, json.Unmarshal(reports[0].Report, &rep))
	assert.Equal(t, reports[0].RequestID, rep.RequestID)

	out, err = ws.run(t, nil, "workspaces", "delete", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ deleted workspace lab")

	_, err = ws.run(t, nil, "workspaces", "delete", "lab")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
