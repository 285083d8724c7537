package agent

import "time"

// Config configures the model runner.
type Config struct {
	// DefaultModel is used when an agent node names no model.
	DefaultModel string

	// MaxSteps bounds model calls when a request sets no budget.
	// Default: 5
	MaxSteps int

	// SchemaRetries is how many times the runner asks again when a
	// structured reply does not match its schema.
	// Default: 2
	SchemaRetries int

	// ContextTokens is the context window the conversation is pruned to.
	// Default: 100000
	ContextTokens int

	// ToolTimeout bounds a single tool invocation.
	// Default: 30s
	ToolTimeout time.Duration
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		MaxSteps:      5,
		SchemaRetries: 2,
		ContextTokens: 100000,
		ToolTimeout:   30 * time.Second,
	}
}

// WithDefaults fills in missing config values with defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	result := c
	if result.MaxSteps <= 0 {
		result.MaxSteps = def.MaxSteps
	}
	if result.SchemaRetries < 0 {
		result.SchemaRetries = 0
	}
	if result.ContextTokens <= 0 {
		result.ContextTokens = def.ContextTokens
	}
	if result.ToolTimeout <= 0 {
		result.ToolTimeout = def.ToolTimeout
	}
	return result
}
