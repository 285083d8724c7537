package shared

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tombee/chatflow/internal/config"
	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/internal/tracing"
	"github.com/tombee/chatflow/pkg/agent"
	"github.com/tombee/chatflow/pkg/llm"
	_ "github.com/tombee/chatflow/pkg/llm/providers" // registers ollama and echo
	"github.com/tombee/chatflow/pkg/tools"
	"github.com/tombee/chatflow/pkg/tools/builtin"
	"github.com/tombee/chatflow/pkg/workflow"
)

// RuntimeOptions adjusts how a Runtime is assembled.
type RuntimeOptions struct {
	// Provider and Model override the configured values when set.
	Provider string
	Model    string

	// LogOutput receives logs. Default: os.Stderr.
	LogOutput io.Writer

	// TraceOutput receives stdout-exporter spans. Default: os.Stderr, so
	// command output on stdout stays parseable.
	TraceOutput io.Writer
}

// Runtime is everything a command needs to execute workflows.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *tracing.Provider
	Provider  llm.Provider
	Tools     *tools.Registry
	Executor  *workflow.Executor
}

// LoadConfig loads configuration from --config (or the default location)
// and applies the --verbose and --quiet flags.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	switch {
	case GetVerbose():
		cfg.Log.Level = "debug"
	case GetQuiet():
		cfg.Log.Level = "error"
	}
	return cfg, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    w,
		AddSource: cfg.Log.AddSource,
	})
}

// NewRuntime wires configuration, logging, telemetry, the model provider,
// the tool registry and the executor together.
func NewRuntime(ctx context.Context, cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	logger := NewLogger(cfg, opts.LogOutput)
	slog.SetDefault(logger)

	traceOut := opts.TraceOutput
	if traceOut == nil {
		traceOut = os.Stderr
	}
	v, _, _ := GetVersion()
	telemetry, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: v,
		SampleRate:     cfg.Tracing.SampleRate,
		Writer:         traceOut,
	})
	if err != nil {
		return nil, NewConfigError("failed to set up telemetry", err)
	}

	providerName := cfg.LLM.Provider
	if opts.Provider != "" {
		providerName = strings.ToLower(opts.Provider)
	}
	model := cfg.LLM.Model
	if opts.Model != "" {
		model = opts.Model
	}

	provider, err := llm.Create(providerName, llm.ProviderConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.RequestTimeout,
		Logger:  log.WithComponent(logger, "llm"),
	})
	if err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, NewProviderError(fmt.Sprintf("failed to create provider %q", providerName), err)
	}

	registry := tools.NewRegistry()
	if err := builtin.Register(registry, builtin.Options{
		Wikipedia: builtin.WikipediaOptions{
			BaseURL:   cfg.Tools.Wikipedia.BaseURL,
			RateLimit: cfg.Tools.Wikipedia.RateLimit,
			Logger:    log.WithComponent(logger, "tools"),
		},
	}); err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, NewConfigError("failed to register tools", err)
	}

	runner := agent.NewRunner(provider, registry, agent.Config{
		DefaultModel:  model,
		MaxSteps:      cfg.Engine.DefaultAgentSteps,
		SchemaRetries: cfg.LLM.SchemaRetries,
		ContextTokens: cfg.LLM.ContextTokens,
	}).WithLogger(log.WithComponent(logger, "agent"))

	executor := workflow.NewExecutor(runner).
		WithLogger(log.WithComponent(logger, "executor")).
		WithMaxSteps(cfg.Engine.MaxSteps).
		WithDefaultAgentSteps(cfg.Engine.DefaultAgentSteps).
		WithTickInterval(cfg.Engine.WaitTick).
		WithTracer(telemetry.Tracer()).
		WithMetrics(telemetry.Metrics())

	logger.Debug("runtime ready",
		slog.String(log.ProviderKey, providerName),
		slog.String("model", model),
		slog.Any("tools", registry.List()))

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Provider:  provider,
		Tools:     registry,
		Executor:  executor,
	}, nil
}

// Close flushes telemetry.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil || r.Telemetry == nil {
		return nil
	}
	return r.Telemetry.Shutdown(ctx)
}
