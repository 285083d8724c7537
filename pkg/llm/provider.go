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

// Package llm defines the provider boundary used by agent nodes: chat
// messages, tool definitions, completions and streamed chunks.
package llm

import (
	"context"
)

// Provider is a chat model backend.
type Provider interface {
	// Name returns the registered provider name, e.g. "ollama".
	Name() string

	// Capabilities reports which optional features the provider supports.
	Capabilities() Capabilities

	// Complete sends a request and blocks until the full response arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a request and returns a channel of chunks. The channel is
	// closed after the final chunk; a chunk with Error set is always final.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// Capabilities describes optional provider features.
type Capabilities struct {
	Streaming bool
	Tools     bool

	// StructuredOutput is true when the provider can constrain output to a
	// JSON schema natively.
	StructuredOutput bool
}

// CompletionRequest is one model call.
type CompletionRequest struct {
	// Model is the provider-specific model id.
	Model string

	// Messages is the full conversation, system prompt first.
	Messages []Message

	// Tools lists the functions the model may call.
	Tools []Tool

	// OutputSchema, when set, asks for a JSON reply matching the schema.
	OutputSchema map[string]interface{}

	Temperature *float64
	MaxTokens   *int
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    MessageRole `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`

	// ToolCalls is set on assistant messages that invoke tools.
	ToolCalls []ToolCall `json:"toolCalls,omitempty" yaml:"toolCalls,omitempty"`

	// ToolCallID and Name are set on tool result messages.
	ToolCallID string `json:"toolCallId,omitempty" yaml:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument object as produced by the model.
	Arguments string `json:"arguments"`
}

// Tool describes a function the model can call.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonError     FinishReason = "error"
)

// TokenUsage counts tokens for one call.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// CompletionResponse is a complete model reply.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        TokenUsage
	Model        string
}

// StreamChunk is one piece of a streamed reply.
type StreamChunk struct {
	Delta StreamDelta

	// FinishReason and Usage are set on the final chunk.
	FinishReason FinishReason
	Usage        *TokenUsage

	Error error
}

// StreamDelta carries incremental content. Providers assemble tool calls
// and deliver them whole.
type StreamDelta struct {
	Content   string
	ToolCalls []ToolCall
}
