package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/simloom/internal/store"
)

// NewWorkspacesCommand creates the workspaces command group.
func NewWorkspacesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workspaces",
		Short:         "List, inspect and delete saved workspaces",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return listWorkspaces(ctx, f, st)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "reports <id>",
		Short:         "Print the request reports saved for a workspace",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return listReports(ctx, f, st, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a workspace and its reports",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				if err := st.DeleteWorkspace(ctx, args[0]); err != nil {
					_ = f.Error(errorCode(err), err.Error(), nil)
					return WrapExitError(ExitFailure, "delete failed", err)
				}
				if f.JSON() {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(f.Writer, "✓ deleted workspace %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withStore(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *OutputFormatter, *store.Store) error) error {
	formatter := opts.formatter(cmd)
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		_ = st.Close()
	}()
	return fn(cmd.Context(), formatter, st)
}

func listWorkspaces(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	infos, err := st.ListWorkspaces(ctx)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list workspaces", err)
	}
	if f.JSON() {
		return f.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(f.Writer, "no workspaces")
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTICK\tREPORTS\tREGISTRY\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", info.ID, info.Tick, info.Reports, shortHash(info.RegistryHash), info.SavedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func listReports(ctx context.Context, f *OutputFormatter, st *store.Store, id string) error {
	reports, err := st.Reports(ctx, id)
	if err != nil {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read reports", err)
	}
	if f.JSON() {
		return f.Success(reports)
	}
	for _, r := range reports {
		fmt.Fprintf(f.Writer, "%d\t%s\t%s\n", r.Seq, r.RequestID, r.CreatedAt.Format(time.RFC3339))
		if f.Verbose {
			fmt.Fprintf(f.Writer, "  %s\n", r.Report)
		}
	}
	return nil
}
