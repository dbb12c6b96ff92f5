package diagnose

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
)

const moveLogic = `for _, e := range entities {
	w.Set(e, "Position", "x", w.Num(e, "Position", "x")+w.Num(e, "Velocity", "dx"))
}`

const wanderLogic = `for _, e := range entities {
	w.Set(e, "Velocity", "dx", 2)
	_ = w.Num(e, "Ghost", "x")
	steer(e)
	w.Teleport(e)
}`

func newRegistry(t *testing.T, systems ...ir.SystemDef) *registry.Registry {
	t.Helper()
	reg := registry.New()
	_, err := reg.RegisterComponent(ir.ComponentDef{Name: "Position", Properties: []ir.Property{{Name: "x", Type: ir.TypeNumber}}})
	require.NoError(t, err)
	_, err = reg.RegisterComponent(ir.ComponentDef{Name: "Velocity", Properties: []ir.Property{{Name: "dx", Type: ir.TypeNumber, Default: 1}}})
	require.NoError(t, err)
	for _, sys := range systems {
		_, err := reg.RegisterSystem(sys)
		require.NoError(t, err)
	}
	return reg
}

func TestRun_MissingComponentIsExact(t *testing.T) {
	reg := newRegistry(t,
		ir.SystemDef{Name: "Move", RequiredComponents: []string{"Position", "Velocity"}, Logic: moveLogic},
		ir.SystemDef{Name: "Drift", RequiredComponents: []string{"Position"}, Logic: `for _, e := range entities {
	w.Set(e, "Position", "x", 1)
}`},
	)
	require.NoError(t, reg.UnregisterComponent("Velocity", true))

	r := Run(reg)

	move, ok := r.System("Move")
	require.True(t, ok)
	assert.Equal(t, []string{"Velocity"}, move.MissingComponents)
	assert.True(t, move.Broken())

	drift, ok := r.System("Drift")
	require.True(t, ok)
	assert.Empty(t, drift.MissingComponents)
	assert.Empty(t, drift.Warnings)
	assert.Nil(t, drift.LastError)

	assert.Equal(t, []string{"Move"}, r.Broken())
	assert.False(t, r.Healthy())
}

func TestRun_Warnings(t *testing.T) {
	reg := newRegistry(t, ir.SystemDef{Name: "Wander", RequiredComponents: []string{"Position"}, Logic: wanderLogic})

	sr, ok := Run(reg).System("Wander")
	require.True(t, ok)
	assert.Equal(t, []Warning{
		{Code: CodeUnguardedWrite, Line: 2, Message: `write to "Velocity" without a Has guard; it is not a required component`},
		{Code: CodeUndeclaredComponent, Line: 3, Message: `reference to undeclared component "Ghost"`},
		{Code: CodeUndefinedHelper, Line: 4, Message: "call to undefined helper steer"},
		{Code: CodeUndefinedHelper, Line: 5, Message: "call to undefined helper w.Teleport"},
	}, sr.Warnings)
	assert.False(t, sr.Broken(), "warnings are advisory")
}

func TestRun_NoFalsePositives(t *testing.T) {
	tests := []struct {
		name  string
		logic string
	}{
		{name: "guarded write", logic: `for _, e := range entities {
	if w.Has(e, "Velocity") {
		w.Set(e, "Velocity", "dx", 0)
	}
}`},
		{name: "full file helpers", logic: `func nudge(w *sim.Ctx, e sim.Entity, by float64) {
	w.Set(e, "Position", "x", math.Floor(w.Num(e, "Position", "x")+by))
}

func Tick(w *sim.Ctx, entities []sim.Entity) error {
	step := func(e sim.Entity) { nudge(w, e, 1) }
	for _, e := range entities {
		step(e)
	}
	return nil
}`},
		{name: "builtins and spawn", logic: `n := len(entities)
for i := 0; i < min(n, 2); i++ {
	child := w.Spawn()
	w.Attach(child, "Position", map[string]any{"x": float64(i)})
	w.Relate("near", child, entities[i])
}
w.Log("spawned")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, ir.SystemDef{Name: "Clean", RequiredComponents: []string{"Position"}, Logic: tt.logic})
			sr, _ := Run(reg).System("Clean")
			assert.Empty(t, sr.Warnings)
		})
	}
}

func TestRun_Unparsable(t *testing.T) {
	reg := newRegistry(t, ir.SystemDef{Name: "Broken", RequiredComponents: []string{"Position"}, Logic: "x := )\n_ = x"})

	sr, _ := Run(reg).System("Broken")
	require.Len(t, sr.Warnings, 1)
	assert.Equal(t, CodeUnparsable, sr.Warnings[0].Code)
	assert.Equal(t, 1, sr.Warnings[0].Line)
}

func TestRunSnapshot_ComponentIssues(t *testing.T) {
	r := RunSnapshot(ir.RegistrySnapshot{Components: []ir.ComponentDef{
		{Name: "Empty"},
		{Name: "Twice", Properties: []ir.Property{{Name: "a", Type: ir.TypeNumber}, {Name: "a", Type: ir.TypeString}}},
		{Name: "Odd", Properties: []ir.Property{{Name: "v", Type: "vector"}, {Name: "n", Type: ir.TypeNumber, Default: "three"}}},
		{Name: "Fine", Properties: []ir.Property{{Name: "ok", Type: ir.TypeBoolean}}},
	}})

	issues := map[string][]string{}
	for _, c := range r.Components {
		issues[c.Name] = c.Issues
	}
	assert.Equal(t, map[string][]string{
		"Empty": {"schema has no properties"},
		"Twice": {`duplicate property "a"`},
		"Odd":   {`property "v" has unknown type "vector"`, `property "n" default: expected number, got string`},
		"Fine":  {},
	}, issues)
}

func TestWarningString(t *testing.T) {
	assert.Equal(t, "W002 line 3: reference to undeclared component \"Ghost\"",
		Warning{Code: CodeUndeclaredComponent, Line: 3, Message: `reference to undeclared component "Ghost"`}.String())
	assert.Equal(t, "W000: logic does not parse", Warning{Code: CodeUnparsable, Message: "logic does not parse"}.String())
}

func TestRun_Golden(t *testing.T) {
	reg := newRegistry(t,
		ir.SystemDef{Name: "Move", RequiredComponents: []string{"Position", "Velocity"}, Logic: moveLogic},
		ir.SystemDef{Name: "Wander", RequiredComponents: []string{"Position"}, Logic: wanderLogic},
	)
	require.NoError(t, reg.RecordError("Wander", &ir.ErrorRecord{
		Kind:    ir.CodeRuntimeFault,
		Message: "component not attached",
		Line:    2,
		Excerpt: `w.Set(e, "Velocity", "dx", 2)`,
		Tick:    4,
	}))

	out, err := ir.MarshalCanonical(Run(reg))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "report", out)
}
