// Package cognition decodes the JSON contracts of the cognitive prompt
// collaborators: goals, plans, reflections and progress evaluations.
//
// The collaborators are optional upstream signals. They decide which intent
// the loop sends to synthesis next; only their output shapes matter here.
// Decoding is strict: unknown fields, trailing data and out-of-range enums
// are rejected with a *ContractError naming the offending field.
package cognition

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Status is the lifecycle state shared by goals and plan steps.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validStatus = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

// Priority ranks goals.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriority = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
}

// Goal is one goal produced by goal generation.
type Goal struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           Priority `json:"priority"`
	SuccessCriteria    []string `json:"success_criteria"`
	ProgressIndicators []string `json:"progress_indicators"`
	Status             Status   `json:"status"`
	Progress           float64  `json:"progress"`
}

// PlanStep is one step produced by plan generation.
type PlanStep struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	Order           int      `json:"order"`
	Status          Status   `json:"status"`
	ExpectedOutcome string   `json:"expectedOutcome"`
	RequiredTools   []string `json:"requiredTools"`
}

// Reflection is the output of a reflection prompt.
type Reflection struct {
	Summary     string   `json:"summary"`
	Lessons     []string `json:"lessons"`
	NextActions []string `json:"nextActions"`
}

// Evaluation is a task or goal progress evaluation.
type Evaluation struct {
	ID        string  `json:"id"`
	Progress  float64 `json:"progress"`
	Status    Status  `json:"status"`
	Reasoning string  `json:"reasoning"`
}

// ContractError reports a payload that violates a collaborator contract.
type ContractError struct {
	Contract string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Contract, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Contract, e.Message)
}

// IsContractError returns true if err is a ContractError.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// DecodeGoals decodes either {"goals": [...]} or a bare array.
func DecodeGoals(data []byte) ([]Goal, error) {
	var goals []Goal
	if err := decodeList(data, "goals", &goals); err != nil {
		return nil, err
	}
	for i, g := range goals {
		field := fmt.Sprintf("goals[%d]", i)
		if err := require("goal", field+".id", g.ID); err != nil {
			return nil, err
		}
		if err := require("goal", field+".description", g.Description); err != nil {
			return nil, err
		}
		if !validPriority[g.Priority] {
			return nil, &ContractError{Contract: "goal", Field: field + ".priority", Message: fmt.Sprintf("unknown priority %q", g.Priority)}
		}
		if err := checkStatus("goal", field+".status", g.Status); err != nil {
			return nil, err
		}
		if err := checkProgress("goal", field+".progress", g.Progress); err != nil {
			return nil, err
		}
	}
	return goals, nil
}

// DecodePlan decodes either {"steps": [...]} or a bare array. Steps are
// returned sorted by Order; duplicate ids or orders are rejected.
func DecodePlan(data []byte) ([]PlanStep, error) {
	var steps []PlanStep
	if err := decodeList(data, "steps", &steps); err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(steps))
	orders := make(map[int]bool, len(steps))
	for i, s := range steps {
		field := fmt.Sprintf("steps[%d]", i)
		if err := require("plan", field+".id", s.ID); err != nil {
			return nil, err
		}
		if err := require("plan", field+".description", s.Description); err != nil {
			return nil, err
		}
		if err := checkStatus("plan", field+".status", s.Status); err != nil {
			return nil, err
		}
		if ids[s.ID] {
			return nil, &ContractError{Contract: "plan", Field: field + ".id", Message: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		if orders[s.Order] {
			return nil, &ContractError{Contract: "plan", Field: field + ".order", Message: fmt.Sprintf("duplicate order %d", s.Order)}
		}
		ids[s.ID] = true
		orders[s.Order] = true
	}
	slices.SortStableFunc(steps, func(a, b PlanStep) int { return cmp.Compare(a.Order, b.Order) })
	return steps, nil
}

// DecodeReflection decodes a reflection object.
func DecodeReflection(data []byte) (*Reflection, error) {
	var r Reflection
	if err := decodeStrict(data, "reflection", &r); err != nil {
		return nil, err
	}
	if err := require("reflection", "summary", r.Summary); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeEvaluation decodes a progress evaluation.
func DecodeEvaluation(data []byte) (*Evaluation, error) {
	var e Evaluation
	if err := decodeStrict(data, "evaluation", &e); err != nil {
		return nil, err
	}
	if err := require("evaluation", "id", e.ID); err != nil {
		return nil, err
	}
	if err := checkStatus("evaluation", "status", e.Status); err != nil {
		return nil, err
	}
	if err := checkProgress("evaluation", "progress", e.Progress); err != nil {
		return nil, err
	}
	return &e, nil
}

// NextStep returns the lowest-order step that is pending or in progress.
// Steps are not reordered; ok is false when every step is finished.
func NextStep(steps []PlanStep) (PlanStep, bool) {
	best := -1
	for i, s := range steps {
		if s.Status != StatusPending && s.Status != StatusInProgress {
			continue
		}
		if best < 0 || s.Order < steps[best].Order {
			best = i
		}
	}
	if best < 0 {
		return PlanStep{}, false
	}
	return steps[best], true
}

// Mark returns a copy of steps with step id set to status.
func Mark(steps []PlanStep, id string, status Status) []PlanStep {
	out := slices.Clone(steps)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	return out
}

// Apply folds an evaluation into the matching goal.
func Apply(goals []Goal, e Evaluation) ([]Goal, bool) {
	out := slices.Clone(goals)
	for i := range out {
		if out[i].ID == e.ID {
			out[i].Progress = e.Progress
			out[i].Status = e.Status
			return out, true
		}
	}
	return out, false
}

// decodeList accepts {"<key>": [...]} or a bare array.
func decodeList(data []byte, key string, dst any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeStrict(trimmed, key, dst)
	}
	var wrapper map[string]json.RawMessage
	if err := decodeStrict(trimmed, key, &wrapper); err != nil {
		return err
	}
	raw, ok := wrapper[key]
	if !ok {
		return &ContractError{Contract: key, Field: key, Message: "missing"}
	}
	if len(wrapper) > 1 {
		var extra []string
		for k := range wrapper {
			if k != key {
				extra = append(extra, k)
			}
		}
		slices.Sort(extra)
		return &ContractError{Contract: key, Message: "unknown fields " + strings.Join(extra, ", ")}
	}
	return decodeStrict(raw, key, dst)
}

func decodeStrict(data []byte, contract string, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ContractError{Contract: contract, Message: err.Error()}
	}
	if dec.More() {
		return &ContractError{Contract: contract, Message: "trailing data after JSON value"}
	}
	return nil
}

func require(contract, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ContractError{Contract: contract, Field: field, Message: "required"}
	}
	return nil
}

func checkStatus(contract, field string, s Status) error {
	if !validStatus[s] {
		return &ContractError{Contract: contract, Field: field, Message: fmt.Sprintf("unknown status %q", s)}
	}
	return nil
}

func checkProgress(contract, field string, p float64) error {
	if p < 0 || p > 1 {
		return &ContractError{Contract: contract, Field: field, Message: fmt.Sprintf("progress %v outside [0, 1]", p)}
	}
	return nil
}
