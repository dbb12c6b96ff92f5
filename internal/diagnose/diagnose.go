// Package diagnose scans a registry for broken and suspicious definitions.
//
// A report lists, for every system, the required components that are no
// longer registered, the last recorded fault and advisory warnings found by
// static inspection of its logic. For every component it lists schema
// issues. Warnings never block registration or execution; they give the
// repair step extra context.
package diagnose

import (
	"fmt"
	"slices"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
)

// Warning codes.
const (
	// CodeUnparsable marks logic that does not parse.
	CodeUnparsable = "W000"

	// CodeUnguardedWrite marks a write to a component that is neither
	// required by the system nor checked with w.Has first.
	CodeUnguardedWrite = "W001"

	// CodeUndeclaredComponent marks a reference to an unregistered component.
	CodeUndeclaredComponent = "W002"

	// CodeUndefinedHelper marks a call to a function or w method that does
	// not exist.
	CodeUndefinedHelper = "W003"
)

// Warning is one advisory finding in a system's logic.
type Warning struct {
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// String renders the warning for prompts and terminals.
func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", w.Code, w.Line, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// SystemReport is the diagnosis of one system.
type SystemReport struct {
	Name              string          `json:"name"`
	MissingComponents []string        `json:"missing_components"`
	LastError         *ir.ErrorRecord `json:"last_error"`
	Warnings          []Warning       `json:"warnings"`
}

// Broken reports whether the system cannot run cleanly as registered.
func (s SystemReport) Broken() bool {
	return len(s.MissingComponents) > 0 || s.LastError != nil
}

// ComponentReport is the diagnosis of one component.
type ComponentReport struct {
	Name   string   `json:"name"`
	Issues []string `json:"issues"`
}

// Report is the result of Run.
type Report struct {
	Systems    []SystemReport    `json:"systems"`
	Components []ComponentReport `json:"components"`
}

// System returns the named system's report.
func (r *Report) System(name string) (SystemReport, bool) {
	for _, s := range r.Systems {
		if s.Name == name {
			return s, true
		}
	}
	return SystemReport{}, false
}

// Broken returns the names of systems with missing components or a fault,
// in registration order.
func (r *Report) Broken() []string {
	var out []string
	for _, s := range r.Systems {
		if s.Broken() {
			out = append(out, s.Name)
		}
	}
	return out
}

// Healthy reports whether nothing is broken and no component has issues.
// Warnings do not count.
func (r *Report) Healthy() bool {
	if len(r.Broken()) > 0 {
		return false
	}
	for _, c := range r.Components {
		if len(c.Issues) > 0 {
			return false
		}
	}
	return true
}

// WarningCount returns the number of warnings across all systems.
func (r *Report) WarningCount() int {
	n := 0
	for _, s := range r.Systems {
		n += len(s.Warnings)
	}
	return n
}

// Run diagnoses every definition in reg.
func Run(reg *registry.Registry) *Report {
	return RunSnapshot(reg.Snapshot())
}

// RunSnapshot diagnoses a registry snapshot.
func RunSnapshot(snap ir.RegistrySnapshot) *Report {
	known := make(map[string]bool, len(snap.Components))
	for _, c := range snap.Components {
		known[c.Name] = true
	}

	r := &Report{
		Systems:    make([]SystemReport, 0, len(snap.Systems)),
		Components: make([]ComponentReport, 0, len(snap.Components)),
	}
	for _, sys := range snap.Systems {
		sr := SystemReport{
			Name:              sys.Name,
			MissingComponents: []string{},
			LastError:         sys.LastError.Clone(),
			Warnings:          inspect(sys, known),
		}
		for _, name := range sys.RequiredComponents {
			if !known[name] && !slices.Contains(sr.MissingComponents, name) {
				sr.MissingComponents = append(sr.MissingComponents, name)
			}
		}
		r.Systems = append(r.Systems, sr)
	}
	for _, c := range snap.Components {
		r.Components = append(r.Components, ComponentReport{Name: c.Name, Issues: componentIssues(c)})
	}
	return r
}

func componentIssues(c ir.ComponentDef) []string {
	issues := []string{}
	if len(c.Properties) == 0 {
		issues = append(issues, "schema has no properties")
	}
	seen := make(map[string]bool, len(c.Properties))
	for _, p := range c.Properties {
		if seen[p.Name] {
			issues = append(issues, fmt.Sprintf("duplicate property %q", p.Name))
		}
		seen[p.Name] = true
		if !ir.ValidPropertyTypes[p.Type] {
			issues = append(issues, fmt.Sprintf("property %q has unknown type %q", p.Name, p.Type))
			continue
		}
		if _, err := ir.DefaultFor(p); err != nil {
			issues = append(issues, fmt.Sprintf("property %q default: %v", p.Name, err))
		}
	}
	return issues
}
