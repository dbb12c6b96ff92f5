package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/simloom/internal/ir"
)

// CompileSystem parses a CUE value into a SystemDef.
//
//	system: Move: {
//		description: "integrate velocity"
//		requires: ["Position", "Velocity"]
//		logic: """
//			for _, e := range entities {
//				w.Set(e, "Position", "x", w.Num(e, "Position", "x")+w.Num(e, "Velocity", "dx"))
//			}
//			"""
//	}
func CompileSystem(v cue.Value) (*ir.SystemDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.SystemDef{Name: labelOf(v), RequiredComponents: []string{}}

	desc, err := optionalString(v, "description")
	if err != nil {
		return nil, err
	}
	def.Description = desc

	reqVal := v.LookupPath(cue.ParsePath("requires"))
	if reqVal.Exists() {
		reqIter, err := reqVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for reqIter.Next() {
			name, err := reqIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			def.RequiredComponents = append(def.RequiredComponents, name)
		}
	}

	logicVal := v.LookupPath(cue.ParsePath("logic"))
	if !logicVal.Exists() {
		return nil, &CompileError{
			Field:   "logic",
			Message: "logic is required",
			Pos:     v.Pos(),
		}
	}
	if def.Logic, err = logicVal.String(); err != nil {
		return nil, formatCUEError(err)
	}

	return def, nil
}
