package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/simloom/internal/ir"
)

// CompileComponent parses a CUE value into a ComponentDef.
//
// The value is the component struct itself; its label becomes the name:
//
//	component: Position: {
//		description: "2D location"
//		properties: {
//			x: "number"
//			y: {type: "number", default: 0, description: "vertical"}
//		}
//	}
//
// Properties keep their declaration order.
func CompileComponent(v cue.Value) (*ir.ComponentDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.ComponentDef{Name: labelOf(v)}

	desc, err := optionalString(v, "description")
	if err != nil {
		return nil, err
	}
	def.Description = desc

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, &CompileError{
			Field:   "properties",
			Message: "properties are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		prop, err := parseProperty(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		def.Properties = append(def.Properties, prop)
	}

	return def, nil
}

// parseProperty accepts either a bare type string or a struct with
// type, default and description fields.
func parseProperty(name string, v cue.Value) (ir.Property, error) {
	prop := ir.Property{Name: name}

	if typ, err := v.String(); err == nil {
		prop.Type = ir.PropertyType(typ)
		return prop, nil
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return prop, &CompileError{
			Field:   "properties." + name,
			Message: "property must be a type string or a struct with a type field",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return prop, formatCUEError(err)
	}
	prop.Type = ir.PropertyType(typ)

	if prop.Description, err = optionalString(v, "description"); err != nil {
		return prop, err
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		raw, err := scalarOf(defVal)
		if err != nil {
			return prop, err
		}
		prop.Default = raw
	}

	return prop, nil
}

// scalarOf converts a concrete CUE scalar into a Go value.
func scalarOf(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return float64(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	default:
		return nil, &CompileError{
			Field:   "default",
			Message: fmt.Sprintf("default must be a concrete scalar, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// labelOf returns the last path selector of v, the definition's name.
func labelOf(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1].String()
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
