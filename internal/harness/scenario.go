package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
)

// Scenario is a scripted conversation with the loop: canned synthesizer
// responses, a sequence of requests and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Synthesis is the synthesizer script, consumed in order by both
	// synthesis and repair calls.
	Synthesis []SynthesisStep `yaml:"synthesis,omitempty"`

	// Setup requests run before the flow. They must succeed and are not
	// part of the trace.
	Setup []loop.Request `yaml:"setup,omitempty"`

	// Flow is the traced request sequence.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final registry, world and store.
	Assertions []Assertion `yaml:"assertions"`

	// MaxRepairs overrides the loop's repair budget when set.
	MaxRepairs *int `yaml:"max_repairs,omitempty"`

	// IDPrefix prefixes generated request ids. Defaults to "req".
	IDPrefix string `yaml:"id_prefix,omitempty"`
}

// SynthesisStep is one scripted synthesizer response: definitions, a raw
// payload, an error or a hang.
type SynthesisStep struct {
	Components []ComponentSpec `yaml:"components,omitempty"`
	Systems    []SystemSpec    `yaml:"systems,omitempty"`

	// Raw is returned verbatim, for malformed-payload scenarios.
	Raw string `yaml:"raw,omitempty"`

	// Error makes the synthesizer call fail with this message.
	Error string `yaml:"error,omitempty"`

	// Block hangs until the synthesis timeout fires.
	Block bool `yaml:"block,omitempty"`
}

// ComponentSpec is a component definition in scenario YAML.
type ComponentSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Properties  []PropertySpec `yaml:"properties"`
}

// PropertySpec is one component property in scenario YAML.
type PropertySpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// SystemSpec is a system definition in scenario YAML.
type SystemSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Requires    []string `yaml:"requires"`
	Logic       string   `yaml:"logic"`
}

// FlowStep is one traced request and what its report must look like.
type FlowStep struct {
	Request loop.Request  `yaml:"request"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause checks one request's report. Unset fields are not checked.
type ExpectClause struct {
	Failed        *bool        `yaml:"failed,omitempty"`
	ErrorContains string       `yaml:"error_contains,omitempty"`
	Stages        []loop.Stage `yaml:"stages,omitempty"`
	Registered    []string     `yaml:"registered,omitempty"`
	Rejected      []string     `yaml:"rejected,omitempty"`
	Repairs       *int         `yaml:"repairs,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is an alias or entity id (entity_value).
	Entity string `yaml:"entity,omitempty"`

	Component string `yaml:"component,omitempty"`
	Property  string `yaml:"property,omitempty"`
	Value     any    `yaml:"value,omitempty"`

	// System names the system for run_count and broken.
	System string `yaml:"system,omitempty"`

	// Name is the definition checked by registered and unregistered.
	Name string `yaml:"name,omitempty"`

	// Missing lists the components a broken system must lack.
	Missing []string `yaml:"missing,omitempty"`

	// Count is used by run_count, entity_count, synthesis_count and
	// stored_reports.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityValue    = "entity_value"
	AssertEntityCount    = "entity_count"
	AssertRegistered     = "registered"
	AssertUnregistered   = "unregistered"
	AssertRunCount       = "run_count"
	AssertBroken         = "broken"
	AssertHealthy        = "healthy"
	AssertSynthesisCount = "synthesis_count"
	AssertStoredReports  = "stored_reports"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	seen := make(map[string]string, len(paths))
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxRepairs != nil && *s.MaxRepairs < 0 {
		return fmt.Errorf("max_repairs must be non-negative")
	}

	for i, step := range s.Synthesis {
		if err := validateSynthesisStep(step); err != nil {
			return fmt.Errorf("synthesis[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if step.Expect != nil && step.Expect.Repairs != nil && *step.Expect.Repairs < 0 {
			return fmt.Errorf("flow[%d].expect: repairs must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateSynthesisStep(step SynthesisStep) error {
	kinds := 0
	if len(step.Components) > 0 || len(step.Systems) > 0 {
		kinds++
	}
	if step.Raw != "" {
		kinds++
	}
	if step.Error != "" {
		kinds++
	}
	if step.Block {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of definitions, raw, error or block is required")
	}
	for _, c := range step.Components {
		if c.Name == "" {
			return fmt.Errorf("component name is required")
		}
		for _, p := range c.Properties {
			if !knownType(ir.PropertyType(p.Type)) {
				return fmt.Errorf("component %s: property %q has unknown type %q", c.Name, p.Name, p.Type)
			}
		}
	}
	for _, sys := range step.Systems {
		if sys.Name == "" {
			return fmt.Errorf("system name is required")
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEntityValue:
		if a.Entity == "" || a.Component == "" || a.Property == "" {
			return fmt.Errorf("assertions[%d]: entity, component and property are required for entity_value", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for entity_value", index)
		}
	case AssertRegistered, AssertUnregistered:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
	case AssertRunCount:
		if a.System == "" {
			return fmt.Errorf("assertions[%d]: system is required for run_count", index)
		}
		if err := requireCount(index, a); err != nil {
			return err
		}
	case AssertBroken:
		if a.System == "" {
			return fmt.Errorf("assertions[%d]: system is required for broken", index)
		}
	case AssertEntityCount, AssertSynthesisCount, AssertStoredReports:
		if err := requireCount(index, a); err != nil {
			return err
		}
	case AssertHealthy:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func requireCount(index int, a *Assertion) error {
	if a.Count == nil {
		return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
	}
	if *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
	}
	return nil
}

func knownType(t ir.PropertyType) bool {
	switch t {
	case ir.TypeNumber, ir.TypeString, ir.TypeBoolean, ir.TypeEntity:
		return true
	}
	return false
}
