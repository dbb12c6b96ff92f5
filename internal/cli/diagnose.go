package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simloom/internal/diagnose"
)

// NewDiagnoseCommand creates the diagnose command.
func NewDiagnoseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnose the workspace registry",
		Long: `Report, for every system, the required components that are no longer
registered, the last recorded fault and static warnings about its logic.

Exits 1 when any system is broken or any component schema has issues.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(rootOpts, cmd)
		},
	}
	return cmd
}

func runDiagnose(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	sess, err := openSession(cmd.Context(), opts, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer sess.Close()

	report := diagnose.Run(sess.reg)
	if formatter.JSON() {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		writeDiagnostics(formatter, report)
	}

	if !report.Healthy() {
		return NewExitError(ExitFailure, fmt.Sprintf("broken systems: %s", strings.Join(report.Broken(), ", ")))
	}
	return nil
}

// writeDiagnostics renders a diagnostics report for terminals.
func writeDiagnostics(f *OutputFormatter, r *diagnose.Report) {
	w := f.Writer
	if len(r.Systems) == 0 && len(r.Components) == 0 {
		fmt.Fprintln(w, "  registry is empty")
		return
	}
	for _, s := range r.Systems {
		mark := "✓"
		if s.Broken() {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s system %s\n", mark, s.Name)
		if len(s.MissingComponents) > 0 {
			fmt.Fprintf(w, "      missing components: %s\n", strings.Join(s.MissingComponents, ", "))
		}
		if e := s.LastError; e != nil {
			fmt.Fprintf(w, "      last error (tick %d): %s: %s\n", e.Tick, e.Kind, e.Message)
			if e.Excerpt != "" {
				fmt.Fprintf(w, "        line %d: %s\n", e.Line, e.Excerpt)
			}
		}
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "      %s\n", warn)
		}
	}
	for _, c := range r.Components {
		if len(c.Issues) == 0 {
			continue
		}
		fmt.Fprintf(w, "  ✗ component %s\n", c.Name)
		for _, issue := range c.Issues {
			fmt.Fprintf(w, "      %s\n", issue)
		}
	}
}
