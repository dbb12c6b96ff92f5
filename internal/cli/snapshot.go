package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/loop"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Output string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the workspace registry and world",
		Long: `Print the workspace's registry catalog, world snapshot and entity aliases.

With --output the snapshot is written as canonical JSON to a file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical JSON to this file")
	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	sess, err := openSession(cmd.Context(), opts.RootOptions, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer sess.Close()

	view := sess.loop.View()
	if opts.Output != "" {
		data, err := ir.MarshalCanonical(view)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode snapshot", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write snapshot", err)
		}
		formatter.VerboseLog("Wrote snapshot to %s", opts.Output)
	}

	if formatter.JSON() {
		return formatter.Success(view)
	}
	writeView(formatter, sess.id, view)
	return nil
}

func writeView(f *OutputFormatter, id string, v *loop.View) {
	w := f.Writer
	fmt.Fprintf(w, "workspace %s at tick %d\n", id, v.Tick)

	fmt.Fprintf(w, "components (%d)\n", len(v.Registry.Components))
	for _, c := range v.Registry.Components {
		props := make([]string, len(c.Properties))
		for i, p := range c.Properties {
			props[i] = p.Name + ":" + string(p.Type)
		}
		fmt.Fprintf(w, "  %s {%s}\n", c.Name, strings.Join(props, ", "))
	}

	fmt.Fprintf(w, "systems (%d)\n", len(v.Registry.Systems))
	for _, s := range v.Registry.Systems {
		status := ""
		if s.LastError != nil {
			status = " [faulted]"
		}
		fmt.Fprintf(w, "  %s requires [%s] runs=%d%s\n", s.Name, strings.Join(s.RequiredComponents, ", "), s.RunCount, status)
	}

	fmt.Fprintf(w, "entities (%d)\n", len(v.World.Entities))
	for _, e := range v.World.Entities {
		names := make([]string, 0, len(e.Components))
		for _, c := range v.Registry.ComponentNames() {
			if _, ok := e.Components[c]; ok {
				names = append(names, c)
			}
		}
		fmt.Fprintf(w, "  #%d %s\n", e.ID, strings.Join(names, ", "))
	}
	if len(v.World.Relations) > 0 {
		fmt.Fprintf(w, "relations (%d)\n", len(v.World.Relations))
		for _, r := range v.World.Relations {
			fmt.Fprintf(w, "  #%d -%s-> #%d\n", r.Source, r.Kind, r.Target)
		}
	}
}
