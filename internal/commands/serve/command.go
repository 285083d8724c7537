// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serve implements `chatflow serve`.
package serve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/internal/server"
)

// Options holds the serve command flags.
type Options struct {
	Addr        string
	MetricsAddr string
	Provider    string
	Model       string
}

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Annotations: map[string]string{
			"group": "server",
		},
		Long: `Serve starts the HTTP API. Clients post a workflow graph and a conversation
to /v1/chat and receive run events as Server-Sent Events, or connect to
/v1/chat/ws for the same stream over a WebSocket.

Other endpoints:
  GET  /health               liveness and active run count
  POST /v1/validate          validate a graph without running it
  GET  /v1/templates         list starter workflows
  GET  /v1/templates/{name}  fetch a starter workflow graph
  GET  /metrics              Prometheus metrics

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Example: `  # Listen on the configured address
  chatflow serve

  # Listen on all interfaces with the offline echo provider
  chatflow serve --addr :8080 --provider echo

  # Expose metrics on a separate port
  chatflow serve --metrics-addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serve(ctx, cmd.ErrOrStderr(), opts, nil)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve /metrics on a separate address")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "Model provider (overrides config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Default model for agents that name none")

	return cmd
}

// serve runs the API until ctx is cancelled. ready, when set, is called
// with the bound addresses once both listeners are open.
func serve(ctx context.Context, stderr io.Writer, opts Options, ready func(api, metrics net.Addr)) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	rt, err := shared.NewRuntime(ctx, cfg, shared.RuntimeOptions{
		Provider:    opts.Provider,
		Model:       opts.Model,
		LogOutput:   stderr,
		TraceOutput: stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = rt.Close(shutdownCtx)
	}()

	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	v, _, _ := shared.GetVersion()
	srvOpts := server.Options{
		Executor:          rt.Executor,
		Logger:            rt.Logger,
		Runs:              rt.Telemetry.Metrics(),
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		RunTimeout:        cfg.Server.RunTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Version:           v,
	}
	if opts.MetricsAddr == "" {
		srvOpts.MetricsHandler = rt.Telemetry.MetricsHandler()
	}
	srv, err := server.New(srvOpts)
	if err != nil {
		return shared.NewConfigError("failed to create server", err)
	}

	var lc net.ListenConfig
	apiLn, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFailure, Message: "failed to listen", Cause: err}
	}

	var metricsLn net.Listener
	if opts.MetricsAddr != "" {
		metricsLn, err = lc.Listen(ctx, "tcp", opts.MetricsAddr)
		if err != nil {
			apiLn.Close()
			return &shared.ExitError{Code: shared.ExitFailure, Message: "failed to listen for metrics", Cause: err}
		}
	}

	if ready != nil {
		var metricsAddr net.Addr
		if metricsLn != nil {
			metricsAddr = metricsLn.Addr()
		}
		ready(apiLn.Addr(), metricsAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, apiLn)
	})
	if metricsLn != nil {
		g.Go(func() error {
			return serveMetrics(gctx, rt.Logger, metricsLn, rt.Telemetry.MetricsHandler())
		})
	}

	if err := g.Wait(); err != nil {
		return shared.NewExecutionError("server stopped", err)
	}
	return nil
}

func serveMetrics(ctx context.Context, logger *slog.Logger, ln net.Listener, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
