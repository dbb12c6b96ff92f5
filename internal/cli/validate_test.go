package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/compiler"
)

const validDefs = `package defs

component: Position: {
	description: "location on a line"
	properties: {x: "number"}
}

component: Velocity: {
	properties: {dx: {type: "number", default: 1}}
}

system: Move: {
	description: "integrate velocity"
	requires: ["Position", "Velocity"]
	logic: """
		for _, e := range entities {
			w.Set(e, "Position", "x", w.Num(e, "Position", "x")+w.Num(e, "Velocity", "dx"))
		}
		"""
}
`

const ghostDefs = `package defs

component: Position: {
	properties: {x: "number"}
}

system: Haunt: {
	requires: ["Position", "Ghost"]
	logic: "_ = entities"
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func defsDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "defs.cue", content)
	return dir
}

func runValidateCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDefinitions(t *testing.T) {
	out, err := runValidateCmd(t, "text", defsDir(t, validDefs))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All definitions valid (2 components, 1 systems)")
}

func TestValidateValidDefinitionsJSON(t *testing.T) {
	out, err := runValidateCmd(t, "json", defsDir(t, validDefs))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Components)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateUndeclaredComponent(t *testing.T) {
	out, err := runValidateCmd(t, "text", defsDir(t, ghostDefs))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUndeclaredComponent+" system.Haunt.required_components")
	assert.Contains(t, out, "Ghost")
}

func TestValidateUndeclaredComponentJSON(t *testing.T) {
	out, err := runValidateCmd(t, "json", defsDir(t, ghostDefs))
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrUndeclaredComponent, resp.Error.Code)
}

func TestValidateCompileError(t *testing.T) {
	dir := defsDir(t, `package defs

component: Bare: {
	description: "no properties"
}
`)
	out, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrNoProperties)
	assert.Contains(t, out, "component.Bare")
}

func TestLoadDefinitions(t *testing.T) {
	res, errs := LoadDefinitions(defsDir(t, validDefs), LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, res.Components, 2)
	require.Len(t, res.Systems, 1)
	assert.Equal(t, "Position", res.Components[0].Name)
	assert.Equal(t, []string{"Position", "Velocity"}, res.Systems[0].RequiredComponents)
	assert.Contains(t, res.Systems[0].Logic, `w.Set(e, "Position", "x"`)
	assert.Equal(t, 1, res.FileCount)
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, compiler.ErrNoProperties, MapFieldToErrorCode("properties"))
	assert.Equal(t, compiler.ErrInvalidPropertyType, MapFieldToErrorCode("properties.x"))
	assert.Equal(t, compiler.ErrEmptyLogic, MapFieldToErrorCode("logic"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("cue"))
}
