package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{}
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "simloom", cmd.Use)
	assert.Contains(t, cmd.Long, "natural-language intents")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"}, {"apply"}, {"diagnose"}, {"snapshot"}, {"serve"},
		{"workspaces"}, {"workspaces", "reports"}, {"workspaces", "delete"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "workspace", "model"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestApplyCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	applyCmd, _, err := cmd.Find([]string{"apply"})
	require.NoError(t, err)

	for _, name := range []string{"intent", "tick", "diagnose", "payload", "defs"} {
		assert.NotNil(t, applyCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, nil, "--format", "xml", "workspaces")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "simloom.yaml", "workspace: from-file\nmodel: file-model\nmax_repairs: 4\n")
	db := filepath.Join(dir, "sim.db")

	opts := &RootOptions{}
	_, err := execute(t, opts, "--config", cfgPath, "--db", db, "--workspace", "from-flag", "workspaces")
	require.NoError(t, err)

	assert.Equal(t, db, opts.Config.Database)
	assert.Equal(t, "from-flag", opts.Config.Workspace)
	assert.Equal(t, "file-model", opts.Config.Model)
	assert.Equal(t, 4, opts.Config.MaxRepairs)
}

func TestBadConfig(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "simloom.toml", "max_repairs = 99\n")

	_, err := execute(t, nil, "--config", cfgPath, "workspaces")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "max_repairs")
}
