package cognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	trequire "github.com/stretchr/testify/require"
)

func TestDecodeGoals(t *testing.T) {
	data := []byte(`{"goals": [{
		"id": "g1",
		"description": "entities drift right",
		"type": "behaviour",
		"priority": "high",
		"success_criteria": ["x grows every tick"],
		"progress_indicators": ["Position.x"],
		"status": "pending",
		"progress": 0
	}]}`)

	goals, err := DecodeGoals(data)
	trequire.NoError(t, err)
	trequire.Len(t, goals, 1)
	assert.Equal(t, PriorityHigh, goals[0].Priority)
	assert.Equal(t, []string{"Position.x"}, goals[0].ProgressIndicators)
}

func TestDecodeGoalsRejects(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{name: "unknown field", data: `[{"id":"g1","description":"d","priority":"low","status":"pending","colour":"red"}]`},
		{name: "bad priority", data: `[{"id":"g1","description":"d","priority":"urgent","status":"pending"}]`, field: "goals[0].priority"},
		{name: "bad status", data: `[{"id":"g1","description":"d","priority":"low","status":"done"}]`, field: "goals[0].status"},
		{name: "missing id", data: `[{"description":"d","priority":"low","status":"pending"}]`, field: "goals[0].id"},
		{name: "progress range", data: `[{"id":"g1","description":"d","priority":"low","status":"pending","progress":1.5}]`, field: "goals[0].progress"},
		{name: "wrong wrapper", data: `{"plans":[]}`, field: "goals"},
		{name: "trailing", data: `[] []`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGoals([]byte(tt.data))
			trequire.Error(t, err)
			var ce *ContractError
			trequire.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestDecodePlanSortsAndPicksNext(t *testing.T) {
	data := []byte(`{"steps": [
		{"id": "s2", "description": "add velocity", "order": 2, "status": "pending", "expectedOutcome": "Velocity registered", "requiredTools": ["synthesize"]},
		{"id": "s1", "description": "add position", "order": 1, "status": "completed", "expectedOutcome": "Position registered", "requiredTools": []},
		{"id": "s3", "description": "add movement", "order": 3, "status": "pending", "expectedOutcome": "Move runs", "requiredTools": ["synthesize", "execute"]}
	]}`)

	steps, err := DecodePlan(data)
	trequire.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{steps[0].ID, steps[1].ID, steps[2].ID})

	next, ok := NextStep(steps)
	trequire.True(t, ok)
	assert.Equal(t, "s2", next.ID)

	steps = Mark(steps, "s2", StatusCompleted)
	next, ok = NextStep(steps)
	trequire.True(t, ok)
	assert.Equal(t, "s3", next.ID)

	steps = Mark(steps, "s3", StatusFailed)
	_, ok = NextStep(steps)
	assert.False(t, ok)
}

func TestDecodePlanRejectsDuplicates(t *testing.T) {
	_, err := DecodePlan([]byte(`[
		{"id": "s1", "description": "a", "order": 1, "status": "pending"},
		{"id": "s1", "description": "b", "order": 2, "status": "pending"}
	]`))
	assert.ErrorContains(t, err, `duplicate step id "s1"`)

	_, err = DecodePlan([]byte(`[
		{"id": "s1", "description": "a", "order": 1, "status": "pending"},
		{"id": "s2", "description": "b", "order": 1, "status": "pending"}
	]`))
	assert.ErrorContains(t, err, "duplicate order 1")
}

func TestDecodeReflection(t *testing.T) {
	r, err := DecodeReflection([]byte(`{"summary": "Move works", "lessons": ["guard optional components"], "nextActions": ["add friction"]}`))
	trequire.NoError(t, err)
	assert.Equal(t, []string{"add friction"}, r.NextActions)

	_, err = DecodeReflection([]byte(`{"lessons": []}`))
	assert.True(t, IsContractError(err))
}

func TestDecodeEvaluationAndApply(t *testing.T) {
	e, err := DecodeEvaluation([]byte(`{"id": "g1", "progress": 0.5, "status": "in_progress", "reasoning": "half the entities move"}`))
	trequire.NoError(t, err)

	goals := []Goal{{ID: "g1", Status: StatusPending}, {ID: "g2", Status: StatusPending}}
	updated, ok := Apply(goals, *e)
	trequire.True(t, ok)
	assert.Equal(t, 0.5, updated[0].Progress)
	assert.Equal(t, StatusInProgress, updated[0].Status)
	assert.Equal(t, StatusPending, goals[0].Status, "input is not modified")

	_, ok = Apply(goals, Evaluation{ID: "g9"})
	assert.False(t, ok)

	_, err = DecodeEvaluation([]byte(`{"id": "g1", "progress": -1, "status": "pending"}`))
	assert.ErrorContains(t, err, "outside [0, 1]")
}

func TestContractErrorMessage(t *testing.T) {
	err := &ContractError{Contract: "plan", Field: "steps[0].id", Message: "required"}
	assert.Equal(t, "plan: steps[0].id: required", err.Error())
	assert.Equal(t, "plan: bad", (&ContractError{Contract: "plan", Message: "bad"}).Error())
}
