package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/simloom/internal/compiler"
	"github.com/roach88/simloom/internal/ir"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the definitions compiled from a directory.
type LoadResult struct {
	Components []ir.ComponentDef
	Systems    []ir.SystemDef
	CUEValue   cue.Value
	FileCount  int
}

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinitions loads and compiles the component and system definitions
// of every CUE file in dir:
//
//	component: Position: {properties: {x: "number"}}
//	system: Move: {requires: ["Position"], logic: "..."}
//
// If mode is LoadModeFailFast, it returns on the first compile error.
func LoadDefinitions(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}
	var errs []error

	compileAll(value, "component", mode, &errs, func(v cue.Value) error {
		def, err := compiler.CompileComponent(v)
		if err == nil {
			result.Components = append(result.Components, *def)
		}
		return err
	})
	if mode == LoadModeFailFast && len(errs) > 0 {
		return result, errs
	}
	compileAll(value, "system", mode, &errs, func(v cue.Value) error {
		def, err := compiler.CompileSystem(v)
		if err == nil {
			result.Systems = append(result.Systems, *def)
		}
		return err
	})

	if len(result.Components) == 0 && len(result.Systems) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no components or systems found in definitions"})
	}
	return result, errs
}

// compileAll runs compile over every field of the top-level struct key.
func compileAll(value cue.Value, key string, mode LoadMode, errs *[]error, compile func(cue.Value) error) {
	v := value.LookupPath(cue.ParsePath(key))
	if !v.Exists() {
		return
	}
	iter, err := v.Fields()
	if err != nil {
		*errs = append(*errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %ss: %v", key, err)})
		return
	}
	for iter.Next() {
		if err := compile(iter.Value()); err != nil {
			*errs = append(*errs, convertCompileError(err, key+"."+iter.Selector().String()))
			if mode == LoadModeFailFast {
				return
			}
		}
	}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeReadFailed  = "E007" // Request or payload file unreadable
	ErrCodeStore       = "E008" // Workspace database error
)

// MapFieldToErrorCode maps a compiler error field to a validation code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "properties":
		return compiler.ErrNoProperties
	case strings.HasPrefix(field, "properties."), field == "default":
		return compiler.ErrInvalidPropertyType
	case field == "logic":
		return compiler.ErrEmptyLogic
	default:
		return ErrCodeGeneric
	}
}
