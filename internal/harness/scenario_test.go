package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/loop"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/drift_right.yaml")
	require.NoError(t, err)

	assert.Equal(t, "drift_right", s.Name)
	require.Len(t, s.Synthesis, 1)
	assert.Len(t, s.Synthesis[0].Components, 2)
	assert.Equal(t, []string{"Position", "Velocity"}, s.Synthesis[0].Systems[0].Requires)
	assert.Contains(t, s.Synthesis[0].Systems[0].Logic, `w.Set(e, "Position", "x"`)

	require.Len(t, s.Flow, 2)
	first := s.Flow[0]
	assert.Equal(t, "entities drift right", first.Request.Intent)
	require.Len(t, first.Request.Commands, 1)
	assert.Equal(t, loop.OpCreate, first.Request.Commands[0].Op)
	assert.Equal(t, "mover", first.Request.Commands[0].As)
	assert.Equal(t, []loop.TickSpec{{System: "Move", Count: 3}}, first.Request.Ticks)
	require.NotNil(t, first.Expect)
	assert.Equal(t, []loop.Stage{loop.StageReceiveIntent, loop.StageSynthesize, loop.StageRegister, loop.StageExecute, loop.StageReport}, first.Expect.Stages)
	require.NotNil(t, first.Expect.Failed)
	assert.False(t, *first.Expect.Failed)

	assert.Equal(t, AssertEntityValue, s.Assertions[0].Type)
	assert.Equal(t, 10, s.Assertions[0].Value)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Errors(t *testing.T) {
	const flow = "flow:\n  - request: {diagnose: true}\n"
	const asserts = "assertions:\n  - {type: healthy}\n"
	const head = "name: n\ndescription: d\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown field", yaml: head + flow + asserts + "assertion: []\n", want: "failed to parse YAML"},
		{name: "missing name", yaml: "description: d\n" + flow + asserts, want: "name is required"},
		{name: "missing description", yaml: "name: n\n" + flow + asserts, want: "description is required"},
		{name: "empty flow", yaml: head + asserts, want: "flow list is required"},
		{name: "empty assertions", yaml: head + flow, want: "assertions list is required"},
		{name: "negative max repairs", yaml: head + "max_repairs: -1\n" + flow + asserts, want: "max_repairs must be non-negative"},
		{name: "empty synthesis step", yaml: head + "synthesis:\n  - {}\n" + flow + asserts, want: "synthesis[0]: exactly one of"},
		{name: "two synthesis kinds", yaml: head + "synthesis:\n  - {raw: x, error: y}\n" + flow + asserts, want: "synthesis[0]: exactly one of"},
		{name: "bad property type", yaml: head + "synthesis:\n  - components: [{name: C, properties: [{name: v, type: vector}]}]\n" + flow + asserts, want: `property "v" has unknown type "vector"`},
		{name: "unnamed system", yaml: head + "synthesis:\n  - systems: [{logic: x}]\n" + flow + asserts, want: "system name is required"},
		{name: "negative repairs", yaml: head + "flow:\n  - request: {diagnose: true}\n    expect: {repairs: -1}\n" + asserts, want: "flow[0].expect: repairs must be non-negative"},
		{name: "unknown assertion", yaml: head + flow + "assertions:\n  - {type: vibes}\n", want: `unknown assertion type "vibes"`},
		{name: "untyped assertion", yaml: head + flow + "assertions:\n  - {name: x}\n", want: "assertions[0]: type is required"},
		{name: "entity value without value", yaml: head + flow + "assertions:\n  - {type: entity_value, entity: a, component: C, property: p}\n", want: "value is required"},
		{name: "entity value without entity", yaml: head + flow + "assertions:\n  - {type: entity_value, component: C, property: p, value: 1}\n", want: "entity, component and property are required"},
		{name: "registered without name", yaml: head + flow + "assertions:\n  - {type: registered}\n", want: "name is required for registered"},
		{name: "run count without system", yaml: head + flow + "assertions:\n  - {type: run_count, count: 1}\n", want: "system is required for run_count"},
		{name: "run count without count", yaml: head + flow + "assertions:\n  - {type: run_count, system: S}\n", want: "count is required for run_count"},
		{name: "negative count", yaml: head + flow + "assertions:\n  - {type: entity_count, count: -2}\n", want: "count must be non-negative"},
		{name: "broken without system", yaml: head + flow + "assertions:\n  - {type: broken}\n", want: "system is required for broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRunCount,
		Expected: "3 runs of Move",
		Actual:   "1 runs of Move",
		Trace: []TraceEvent{
			{RequestID: "req-1", Stages: []loop.Stage{loop.StageReceiveIntent, loop.StageReport}, Tick: 1},
		},
	}
	assert.Equal(t, "Assertion failed: run_count\n"+
		"  Expected: 3 runs of Move\n"+
		"  Actual: 1 runs of Move\n"+
		"\nFull trace:\n"+
		"  [1] req-1 [RECEIVE_INTENT REPORT] tick=1 failed=false\n", err.Error())

	err.Trace = nil
	assert.NotContains(t, err.Error(), "Full trace")
}
