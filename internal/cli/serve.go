package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/simloom/internal/inspect"
	"github.com/roach88/simloom/internal/loop"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Requests []string

	// Ready, when set, receives the bound address once the server listens (for testing).
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only inspection API for a workspace",
		Long: `Start the workspace's request loop and the read-only inspection API.

Request files given with --request are submitted to the loop in order once it
starts; their reports are saved to the workspace as they finish. The API
serves the last published state:

  GET /api/components   GET /api/systems   GET /api/entities
  GET /api/diagnostics  GET /api/snapshot  GET /healthz  GET /metrics`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringArrayVar(&opts.Requests, "request", nil, "request file to submit at startup (repeatable)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var reqs []loop.Request
	for _, path := range opts.Requests {
		req, err := ReadRequest(path)
		if err != nil {
			_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid request", err)
		}
		reqs = append(reqs, req)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, opts.RootOptions, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer sess.Close()

	addr := opts.Listen
	if addr == "" {
		addr = opts.Config.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler: inspect.NewRouter(sess.loop,
			inspect.WithMetrics(sess.metrics),
			inspect.WithLogger(slog.Default()),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("serving inspection API", "addr", ln.Addr().String(), "workspace", sess.id)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving workspace %s on http://%s\n", sess.id, ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sess.loop.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return submitAll(gctx, sess.loop, reqs)
	})
	g.Go(func() error {
		<-gctx.Done()
		sess.loop.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// submitAll feeds reqs to the loop one at a time and logs each result.
func submitAll(ctx context.Context, l *loop.Loop, reqs []loop.Request) error {
	for _, req := range reqs {
		done, err := l.Submit(req)
		if err != nil {
			return nil // loop already stopped
		}
		select {
		case res := <-done:
			if res.Err != nil && res.Report != nil {
				slog.Warn("startup request failed", "request", res.Report.RequestID, "error", res.Err)
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
