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

// Package config loads chatflow configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cferrors "github.com/tombee/chatflow/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete chatflow configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	LLM     LLMConfig     `yaml:"llm"`
	Server  ServerConfig  `yaml:"server"`
	Tools   ToolsConfig   `yaml:"tools"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`
}

// EngineConfig configures graph execution.
type EngineConfig struct {
	// MaxSteps caps node executions per run.
	// Environment: CHATFLOW_MAX_STEPS
	// Default: 100
	MaxSteps int `yaml:"max_steps"`

	// WaitTick is how often wait nodes publish their countdown.
	// Default: 100ms
	WaitTick time.Duration `yaml:"wait_tick"`

	// DefaultAgentSteps is the model step budget for agent nodes that set
	// none.
	// Default: 5
	DefaultAgentSteps int `yaml:"default_agent_steps"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	// Provider is a registered provider name, e.g. "ollama" or "echo".
	// Environment: CHATFLOW_PROVIDER
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider endpoint.
	// Environment: CHATFLOW_LLM_BASE_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Model is used by agent nodes that name no model.
	// Environment: CHATFLOW_MODEL
	Model string `yaml:"model"`

	// APIKey is passed to providers that need one.
	// Environment: CHATFLOW_LLM_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// RequestTimeout bounds a single model request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ContextTokens is the context window conversations are pruned to.
	ContextTokens int `yaml:"context_tokens"`

	// SchemaRetries is how often a structured reply is requested again
	// when it does not match its schema.
	SchemaRetries int `yaml:"schema_retries"`
}

// ServerConfig configures `chatflow serve`.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: CHATFLOW_ADDR
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`

	// MaxConcurrentRuns bounds runs in flight; further requests get 503.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// RateLimit is the accepted chat requests per second; zero disables
	// limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RunTimeout bounds a single run started over HTTP.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// ToolsConfig configures built-in tools.
type ToolsConfig struct {
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
}

// WikipediaConfig configures the wikipedia-query tool.
type WikipediaConfig struct {
	// BaseURL is the wiki root, e.g. https://en.wikipedia.org.
	BaseURL string `yaml:"base_url"`

	// RateLimit caps requests per second.
	RateLimit float64 `yaml:"rate_limit"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	// Enabled turns on span export.
	// Environment: CHATFLOW_TRACING_ENABLED
	Enabled bool `yaml:"enabled"`

	// Exporter is one of stdout, otlp-http, otlp-grpc.
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address for otlp exporters.
	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`

	// SampleRate is the fraction of runs traced, from 0 to 1.
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns a new Config with sensible default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			MaxSteps:          100,
			WaitTick:          100 * time.Millisecond,
			DefaultAgentSteps: 5,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "llama3.2",
			RequestTimeout: 5 * time.Minute,
			ContextTokens:  100000,
			SchemaRetries:  2,
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			MaxConcurrentRuns: 10,
			RateLimit:         5,
			RateBurst:         10,
			ShutdownTimeout:   10 * time.Second,
			RunTimeout:        10 * time.Minute,
		},
		Tools: ToolsConfig{
			Wikipedia: WikipediaConfig{
				BaseURL:   "https://en.wikipedia.org",
				RateLimit: 5,
			},
		},
		Tracing: TracingConfig{
			Enabled:     false, // Opt-in
			Exporter:    "stdout",
			ServiceName: "chatflow",
			SampleRate:  1.0,
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file. An empty configPath
// falls back to the default config path when that file exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if path, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				configPath = path
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &cferrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &cferrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values so minimal configs work without
// specifying every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Engine.MaxSteps == 0 {
		c.Engine.MaxSteps = defaults.Engine.MaxSteps
	}
	if c.Engine.WaitTick == 0 {
		c.Engine.WaitTick = defaults.Engine.WaitTick
	}
	if c.Engine.DefaultAgentSteps == 0 {
		c.Engine.DefaultAgentSteps = defaults.Engine.DefaultAgentSteps
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = defaults.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaults.LLM.Model
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = defaults.LLM.RequestTimeout
	}
	if c.LLM.ContextTokens == 0 {
		c.LLM.ContextTokens = defaults.LLM.ContextTokens
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.MaxConcurrentRuns == 0 {
		c.Server.MaxConcurrentRuns = defaults.Server.MaxConcurrentRuns
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Server.RunTimeout == 0 {
		c.Server.RunTimeout = defaults.Server.RunTimeout
	}

	if c.Tools.Wikipedia.BaseURL == "" {
		c.Tools.Wikipedia.BaseURL = defaults.Tools.Wikipedia.BaseURL
	}
	if c.Tools.Wikipedia.RateLimit == 0 {
		c.Tools.Wikipedia.RateLimit = defaults.Tools.Wikipedia.RateLimit
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("CHATFLOW_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = parseBool(val)
	}
	if val := os.Getenv("CHATFLOW_DEBUG"); parseBool(val) {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	}

	// Engine configuration
	if val := os.Getenv("CHATFLOW_MAX_STEPS"); val != "" {
		if steps, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxSteps = steps
		}
	}
	if val := os.Getenv("CHATFLOW_WAIT_TICK"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.WaitTick = d
		}
	}

	// LLM configuration
	if val := os.Getenv("CHATFLOW_PROVIDER"); val != "" {
		c.LLM.Provider = strings.ToLower(val)
	}
	if val := os.Getenv("CHATFLOW_MODEL"); val != "" {
		c.LLM.Model = val
	}
	if val := os.Getenv("CHATFLOW_LLM_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	} else if val := os.Getenv("OLLAMA_HOST"); val != "" && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = ollamaHostURL(val)
	}
	if val := os.Getenv("CHATFLOW_LLM_API_KEY"); val != "" {
		c.LLM.APIKey = val
	}
	if val := os.Getenv("CHATFLOW_LLM_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.LLM.RequestTimeout = d
		}
	}

	// Server configuration
	if val := os.Getenv("CHATFLOW_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("CHATFLOW_MAX_CONCURRENT_RUNS"); val != "" {
		if runs, err := strconv.Atoi(val); err == nil {
			c.Server.MaxConcurrentRuns = runs
		}
	}
	if val := os.Getenv("CHATFLOW_RATE_LIMIT"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil {
			c.Server.RateLimit = limit
		}
	}
	if val := os.Getenv("CHATFLOW_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = d
		}
	}

	// Tracing configuration
	if val := os.Getenv("CHATFLOW_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("CHATFLOW_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		c.Tracing.ServiceName = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Sprintf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps))
	}
	if c.Engine.WaitTick <= 0 {
		errs = append(errs, fmt.Sprintf("engine.wait_tick must be positive, got %v", c.Engine.WaitTick))
	}
	if c.Engine.DefaultAgentSteps < 1 || c.Engine.DefaultAgentSteps > 10 {
		errs = append(errs, fmt.Sprintf("engine.default_agent_steps must be between 1 and 10, got %d", c.Engine.DefaultAgentSteps))
	}

	if c.LLM.Provider == "" {
		errs = append(errs, "llm.provider is required")
	}
	if c.LLM.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("llm.request_timeout must be positive, got %v", c.LLM.RequestTimeout))
	}
	if c.LLM.SchemaRetries < 0 {
		errs = append(errs, fmt.Sprintf("llm.schema_retries must be >= 0, got %d", c.LLM.SchemaRetries))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Sprintf("server.max_concurrent_runs must be positive, got %d", c.Server.MaxConcurrentRuns))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must be >= 0, got %v", c.Server.RateLimit))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	if c.Tools.Wikipedia.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("tools.wikipedia.rate_limit must be >= 0, got %v", c.Tools.Wikipedia.RateLimit))
	}

	validExporters := map[string]bool{"stdout": true, "otlp-http": true, "otlp-grpc": true, "none": true}
	if !validExporters[c.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [stdout, otlp-http, otlp-grpc, none], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func parseBool(val string) bool {
	return val == "1" || strings.ToLower(val) == "true"
}

// ollamaHostURL turns an OLLAMA_HOST value such as "0.0.0.0:11434" into a
// base URL.
func ollamaHostURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}
