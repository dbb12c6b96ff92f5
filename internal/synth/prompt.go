package synth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Instructions is the system instruction sent with every request. It
// describes the payload contract and the primitives logic may call.
const Instructions = `You design components and systems for a live entity-component simulation.
Answer with one JSON object: {"components": [...], "systems": [...]}.

Component: {"name", "description", "properties": [{"name", "type", "description", "default"}]}
  type is one of "number", "string", "boolean", "entity".
  Component schemas are immutable once registered; reshaping needs a new name.

System: {"name", "description", "requiredComponents": [...], "logic"}
  requiredComponents must name registered components or components in the same answer.
  logic is the body of: func Tick(w *sim.Ctx, entities []sim.Entity) error
  entities holds every entity with all required components, ascending by id.
  Only the "math" package is importable. Available on w:
    Has(e, comp) bool
    Num(e, comp, prop) float64 / Str(...) string / Bool(...) bool / Ref(...) sim.Entity
    Set(e, comp, prop, value)
    Attach(e, comp, map[string]any{...}) / Detach(e, comp)
    Spawn() sim.Entity / Destroy(e)
    Relate(kind, src, dst) / Unrelate(kind, src, dst) bool
    Targets(kind, src) []sim.Entity / Sources(kind, dst) []sim.Entity
    Query(comps...) []sim.Entity / Tick() int64 / Log(msg)
  Reading or writing a component an entity does not hold is a fault; guard
  optional components with w.Has.`

// Prompt renders the user turn for a request.
func Prompt(req Request) (string, error) {
	reg, err := json.MarshalIndent(req.Registry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode registry: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current registry:\n%s\n\n", reg)
	if req.Repair != nil {
		fmt.Fprintf(&b, "Repair system %q. Return only that system, same name, fixed logic.\n", req.Repair.System)
		if req.Repair.LastError != nil {
			fmt.Fprintf(&b, "Last error: %s", req.Repair.LastError.Message)
			if req.Repair.LastError.Line > 0 {
				fmt.Fprintf(&b, " (line %d: %s)", req.Repair.LastError.Line, req.Repair.LastError.Excerpt)
			}
			b.WriteString("\n")
		}
		for _, w := range req.Repair.Warnings {
			fmt.Fprintf(&b, "Warning: %s\n", w)
		}
		fmt.Fprintf(&b, "Current logic:\n%s\n\n", req.Repair.Logic)
	}
	fmt.Fprintf(&b, "Intent: %s\n", req.Intent)
	return b.String(), nil
}
