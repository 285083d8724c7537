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

package errors

import (
	"fmt"
	"net/http"
)

// ValidationError reports invalid input such as a malformed tool argument,
// an unparseable graph file or a bad configuration value.
type ValidationError struct {
	// Field identifies the offending input, if any.
	Field string

	// Message describes the problem.
	Message string

	// Hint tells the user how to fix it.
	Hint string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s", e.Message)
}

func (e *ValidationError) IsUserVisible() bool { return true }
func (e *ValidationError) UserMessage() string { return e.Error() }
func (e *ValidationError) Suggestion() string  { return e.Hint }

// NotFoundError reports a lookup miss. Resource is the kind of thing
// that was looked up ("node", "tool", "template", "provider").
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsUserVisible() bool { return true }
func (e *NotFoundError) UserMessage() string { return e.Error() }
func (e *NotFoundError) Suggestion() string  { return "" }

// ProviderError reports a failure returned by a model provider.
type ProviderError struct {
	// Provider is the registered provider name, e.g. "ollama".
	Provider string

	// StatusCode is the HTTP status returned by the provider, if any.
	StatusCode int

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s [HTTP %d]: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *ProviderError) ErrorType() string { return "provider" }

// IsRetryable reports whether the provider may succeed on a later attempt.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ConfigError reports a problem with the configuration file or environment.
type ConfigError struct {
	// Key is the dotted configuration key, e.g. "engine.max_steps".
	Key    string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) IsUserVisible() bool { return true }
func (e *ConfigError) UserMessage() string { return e.Error() }
func (e *ConfigError) Suggestion() string {
	return "Check the configuration file and CHATFLOW_* environment variables"
}

// NodeError ties a run failure to the node that was executing when it
// happened.
type NodeError struct {
	NodeID   string
	NodeType string
	Cause    error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeType != "" {
		return fmt.Sprintf("%s node %s: %v", e.NodeType, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *NodeError) Unwrap() error { return e.Cause }
