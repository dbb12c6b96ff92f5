package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/simloom/internal/loop"
	"github.com/roach88/simloom/internal/synth"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Intent   string
	Ticks    []string
	Diagnose bool
	Payload  string
	Defs     string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [request-file]",
		Short: "Run one request through the loop against a workspace",
		Long: `Run one request through the synthesize, register, execute, diagnose
and repair loop, then save the workspace and the request report.

The request file is YAML or JSON. Flags fill in or override its fields.

Examples:
  simloom apply --intent "entities with a velocity move along x"
  simloom apply scenario.yaml --tick Move=10
  simloom apply --defs ./defs --tick Move=3
  simloom apply --payload proposal.json --intent "add gravity"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runApply(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Intent, "intent", "", "natural-language intent to synthesize")
	cmd.Flags().StringArrayVar(&opts.Ticks, "tick", nil, "run ticks, as System=N (repeatable)")
	cmd.Flags().BoolVar(&opts.Diagnose, "diagnose", false, "always attach a diagnostics report")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "answer synthesis from a fixed payload file")
	cmd.Flags().StringVar(&opts.Defs, "defs", "", "answer synthesis with the CUE definitions in a directory")
	cmd.MarkFlagsMutuallyExclusive("payload", "defs")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := opts.request(path)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	s, err := opts.fixedSynthesizer(formatter)
	if err != nil {
		return err
	}
	if s != nil && req.Intent == "" && len(req.Plan) == 0 {
		req.Intent = "register the supplied definitions"
	}

	sess, err := openSession(cmd.Context(), opts.RootOptions, s)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer sess.Close()

	rep, err := sess.loop.Handle(cmd.Context(), req)
	if err != nil {
		if formatter.JSON() {
			_ = formatter.Envelope(CLIResponse{
				Status:    "error",
				Data:      rep,
				Error:     &CLIError{Code: errorCode(err), Message: err.Error()},
				RequestID: rep.RequestID,
			})
		} else {
			writeReport(formatter, rep)
		}
		return WrapExitError(ExitFailure, "request failed", err)
	}

	if formatter.JSON() {
		return formatter.Envelope(CLIResponse{Status: "ok", Data: rep, RequestID: rep.RequestID})
	}
	writeReport(formatter, rep)
	return nil
}

// request builds the request from the file and flags.
func (o *ApplyOptions) request(path string) (loop.Request, error) {
	var req loop.Request
	if path != "" {
		var err error
		if req, err = ReadRequest(path); err != nil {
			return req, err
		}
	}
	if o.Intent != "" {
		req.Intent = o.Intent
	}
	for _, spec := range o.Ticks {
		ts, err := parseTickSpec(spec)
		if err != nil {
			return req, err
		}
		req.Ticks = append(req.Ticks, ts)
	}
	if o.Diagnose {
		req.Diagnose = true
	}
	return req, nil
}

// fixedSynthesizer returns the synthesizer named by --payload or --defs,
// or nil when neither is set.
func (o *ApplyOptions) fixedSynthesizer(formatter *OutputFormatter) (synth.Synthesizer, error) {
	switch {
	case o.Payload != "":
		return staticPayload(o.Payload)
	case o.Defs != "":
		res, errs := LoadDefinitions(o.Defs, LoadModeFailFast)
		if len(errs) > 0 {
			code := ErrCodeGeneric
			var loadErr *LoadError
			if errors.As(errs[0], &loadErr) {
				code = loadErr.Code
			}
			_ = formatter.Error(code, errs[0].Error(), nil)
			return nil, WrapExitError(ExitCommandError, "failed to load definitions", errs[0])
		}
		formatter.VerboseLog("Loaded %d component(s) and %d system(s) from %s", len(res.Components), len(res.Systems), o.Defs)
		raw, err := synth.EncodePayload(res.Components, res.Systems)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to encode definitions", err)
		}
		return synth.Static(raw), nil
	}
	return nil, nil
}

// ReadRequest decodes a YAML (.yaml, .yml) or JSON request file. Unknown
// fields are rejected.
func ReadRequest(path string) (loop.Request, error) {
	var req loop.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("parse request %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("parse request %s: %w", path, err)
		}
	default:
		return req, fmt.Errorf("request %s: unsupported extension %q", path, filepath.Ext(path))
	}
	return req, nil
}

func parseTickSpec(spec string) (loop.TickSpec, error) {
	name, count, ok := strings.Cut(spec, "=")
	if !ok {
		return loop.TickSpec{System: strings.TrimSpace(spec), Count: 1}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 1 {
		return loop.TickSpec{}, fmt.Errorf("invalid tick spec %q: count must be a positive integer", spec)
	}
	return loop.TickSpec{System: strings.TrimSpace(name), Count: n}, nil
}

// writeReport renders a report for terminals.
func writeReport(f *OutputFormatter, rep *loop.Report) {
	w := f.Writer
	mark := "✓"
	if rep.Failed() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s request %s\n", mark, rep.RequestID)
	if rep.Intent != "" {
		fmt.Fprintf(w, "  intent:   %s\n", rep.Intent)
	}
	stages := make([]string, len(rep.Stages))
	for i, s := range rep.Stages {
		stages[i] = string(s)
	}
	fmt.Fprintf(w, "  stages:   %s\n", strings.Join(stages, " → "))

	if p := rep.Proposal; p != nil {
		if len(p.Components) > 0 {
			fmt.Fprintf(w, "  components registered: %s\n", strings.Join(p.Components, ", "))
		}
		if len(p.Systems) > 0 {
			fmt.Fprintf(w, "  systems registered:    %s\n", strings.Join(p.Systems, ", "))
		}
		for _, e := range p.Rejected {
			fmt.Fprintf(w, "  rejected %s %s: %s\n", e.Kind, e.Name, e.Reason)
		}
	}
	for _, c := range rep.Commands {
		if c.Error != "" {
			fmt.Fprintf(w, "  command %d (%s) failed: %s\n", c.Index, c.Op, c.Error)
		}
	}
	for _, b := range rep.Ticks {
		fmt.Fprintf(w, "  ticks:    %s %d/%d\n", b.System, b.Completed, b.Requested)
	}
	for _, r := range rep.Repairs {
		status := "failed"
		if r.Replaced {
			status = "replaced"
		}
		fmt.Fprintf(w, "  repair:   %s attempt %d %s\n", r.System, r.Attempt, status)
	}
	if d := rep.Diagnostics; d != nil {
		writeDiagnostics(f, d)
	}
	fmt.Fprintf(w, "  tick %d, registry %s\n", rep.Tick, shortHash(rep.RegistryHash))
	if rep.Failed() {
		fmt.Fprintf(w, "  error: %s\n", rep.Error)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
