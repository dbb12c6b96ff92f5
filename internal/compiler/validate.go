package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/simloom/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported definition type for validation

	// ComponentDef errors (E101-E109)
	ErrInvalidName         = "E101" // name missing or not an identifier
	ErrNoProperties        = "E102" // at least one property required
	ErrDuplicateProperty   = "E103" // property name repeated
	ErrInvalidPropertyType = "E104" // type outside number/string/boolean/entity
	ErrDefaultMismatch     = "E105" // default does not match the property type
	ErrDuplicateName       = "E106" // definition name repeated in a batch
	ErrComponentExists     = "E107" // component name already registered
	ErrInvalidPropertyName = "E108" // property name missing or not an identifier

	// SystemDef errors (E110-E119)
	ErrEmptyLogic           = "E110" // logic body is blank
	ErrUndeclaredComponent  = "E111" // required component not registered nor in batch
	ErrDuplicateRequirement = "E112" // required component listed twice
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a single definition against schema rules.
// Returns all errors found (does not fail-fast).
// Supports ComponentDef and SystemDef; dependency checks need a batch, see
// ValidateBatch.
func Validate(v any) []ValidationError {
	switch def := v.(type) {
	case *ir.ComponentDef:
		return validateComponent(def)
	case ir.ComponentDef:
		return validateComponent(&def)
	case *ir.SystemDef:
		return validateSystem(def)
	case ir.SystemDef:
		return validateSystem(&def)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported definition type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// identPattern matches names usable from logic and CUE labels.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateName(field, name string) []ValidationError {
	if !identPattern.MatchString(name) {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("name %q must be a non-empty identifier", name),
			Code:    ErrInvalidName,
		}}
	}
	return nil
}

// validateComponent validates a component schema.
func validateComponent(def *ir.ComponentDef) []ValidationError {
	errs := validateName("name", def.Name)

	// E102: at least one property required
	if len(def.Properties) == 0 {
		errs = append(errs, ValidationError{
			Field:   "properties",
			Message: fmt.Sprintf("component %q must declare at least one property", def.Name),
			Code:    ErrNoProperties,
		})
	}

	seen := make(map[string]bool)
	for i, p := range def.Properties {
		field := fmt.Sprintf("properties[%d]", i)

		// E108: property names must be identifiers
		if !identPattern.MatchString(p.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("property name %q must be a non-empty identifier", p.Name),
				Code:    ErrInvalidPropertyName,
			})
		}

		// E103: duplicate property name
		if seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate property name: %q", p.Name),
				Code:    ErrDuplicateProperty,
			})
		}
		seen[p.Name] = true

		// E104: known type
		if !ir.ValidPropertyTypes[p.Type] {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("invalid type %q for property %q", p.Type, p.Name),
				Code:    ErrInvalidPropertyType,
			})
			continue
		}

		// E105: default matches type
		if p.Default != nil {
			if _, err := ir.Coerce(p.Type, p.Default); err != nil {
				errs = append(errs, ValidationError{
					Field:   field + ".default",
					Message: fmt.Sprintf("default for %q: %v", p.Name, err),
					Code:    ErrDefaultMismatch,
				})
			}
		}
	}

	return errs
}

// validateSystem validates a system definition in isolation.
func validateSystem(def *ir.SystemDef) []ValidationError {
	errs := validateName("name", def.Name)

	// E110: logic must not be blank
	if strings.TrimSpace(def.Logic) == "" {
		errs = append(errs, ValidationError{
			Field:   "logic",
			Message: fmt.Sprintf("system %q has no logic", def.Name),
			Code:    ErrEmptyLogic,
		})
	}

	// E112: duplicate requirement
	seen := make(map[string]bool)
	for i, name := range def.RequiredComponents {
		if seen[name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("required_components[%d]", i),
				Message: fmt.Sprintf("component %q listed twice", name),
				Code:    ErrDuplicateRequirement,
			})
		}
		seen[name] = true
	}

	return errs
}

// BatchResult holds per-entry validation errors aligned with the input slices.
// An entry with no errors is acceptable.
type BatchResult struct {
	Components [][]ValidationError
	Systems    [][]ValidationError
}

// Accepted reports the number of entries without errors.
func (b BatchResult) Accepted() int {
	n := 0
	for _, errs := range b.Components {
		if len(errs) == 0 {
			n++
		}
	}
	for _, errs := range b.Systems {
		if len(errs) == 0 {
			n++
		}
	}
	return n
}

// ValidateBatch validates a set of proposed definitions against an existing
// registry. Components are checked first; a system's required components
// must be registered already or be accepted components of the same batch.
// A rejected component therefore also rejects the systems that need it.
func ValidateBatch(existing ir.RegistrySnapshot, comps []ir.ComponentDef, systems []ir.SystemDef) BatchResult {
	res := BatchResult{
		Components: make([][]ValidationError, len(comps)),
		Systems:    make([][]ValidationError, len(systems)),
	}

	known := make(map[string]bool)
	for _, c := range existing.Components {
		known[c.Name] = true
	}

	batchNames := make(map[string]bool)
	for i := range comps {
		c := &comps[i]
		errs := validateComponent(c)

		// E107: name already registered
		if known[c.Name] {
			errs = append(errs, ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("component %q is already registered", c.Name),
				Code:    ErrComponentExists,
			})
		}
		// E106: name repeated in batch
		if batchNames[c.Name] {
			errs = append(errs, ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("component %q appears twice in the batch", c.Name),
				Code:    ErrDuplicateName,
			})
		}
		batchNames[c.Name] = true
		res.Components[i] = errs
	}
	for i, c := range comps {
		if len(res.Components[i]) == 0 {
			known[c.Name] = true
		}
	}

	sysNames := make(map[string]bool)
	for i := range systems {
		s := &systems[i]
		errs := validateSystem(s)

		if sysNames[s.Name] {
			errs = append(errs, ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("system %q appears twice in the batch", s.Name),
				Code:    ErrDuplicateName,
			})
		}
		sysNames[s.Name] = true

		// E111: every requirement resolves
		var missing []string
		for _, name := range s.RequiredComponents {
			if !known[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, ValidationError{
				Field:   "required_components",
				Message: fmt.Sprintf("undeclared components: %s", strings.Join(missing, ", ")),
				Code:    ErrUndeclaredComponent,
			})
		}
		res.Systems[i] = errs
	}

	return res
}
