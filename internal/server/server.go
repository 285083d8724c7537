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

// Package server exposes workflow validation and execution over HTTP.
//
// Runs stream their events to the caller either as Server-Sent Events on
// POST /v1/chat or as JSON messages on the /v1/chat/ws WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/internal/tracing"
	"github.com/tombee/chatflow/pkg/workflow"
)

// RunTracker observes runs started through the server.
type RunTracker interface {
	RecordRunStart()
	RecordRunEnd()
}

// Options configures a Server.
type Options struct {
	Executor *workflow.Executor
	Logger   *slog.Logger

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// Runs is notified when runs start and end. Optional.
	Runs RunTracker

	// MaxConcurrentRuns bounds in-flight runs. Requests beyond the bound
	// get 503. Default: 10
	MaxConcurrentRuns int

	// RateLimit is requests per second per client on the run endpoints.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// RunTimeout bounds a single run. Default: 10m
	RunTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration

	Version string
}

// Server is the chatflow HTTP API.
type Server struct {
	executor        *workflow.Executor
	logger          *slog.Logger
	runs            RunTracker
	gate            *runGate
	limiter         *clientLimiter
	runTimeout      time.Duration
	shutdownTimeout time.Duration
	version         string
	handler         http.Handler
}

// New creates a server. The executor is required.
func New(opts Options) (*Server, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 10
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		executor:        opts.Executor,
		logger:          log.WithComponent(opts.Logger, "server"),
		runs:            opts.Runs,
		gate:            newRunGate(opts.MaxConcurrentRuns),
		limiter:         newClientLimiter(opts.RateLimit, opts.RateBurst),
		runTimeout:      opts.RunTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
		version:         opts.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("GET /v1/templates", s.handleListTemplates)
	mux.HandleFunc("GET /v1/templates/{name}", s.handleGetTemplate)
	mux.Handle("POST /v1/chat", s.admit(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /v1/chat/ws", s.admit(http.HandlerFunc(s.handleChatWebSocket)))
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	s.handler = tracing.HTTPMiddleware(log.NewHTTPMiddleware(s.logger).Wrap(mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. In-flight runs get ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
