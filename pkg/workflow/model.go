package workflow

import (
	"context"

	"github.com/tombee/chatflow/pkg/llm"
)

// ModelRequest is what an agent node asks of the model capability.
type ModelRequest struct {
	Model        string
	SystemPrompt string
	Messages     []llm.Message

	// Tools are the tool ids selected on the node.
	Tools []string

	// MaxSteps bounds the number of model turns, tool round-trips included.
	MaxSteps int

	// OutputSchema is set when the node requests structured output.
	OutputSchema map[string]interface{}
}

// ModelResponse is the outcome of a model call.
type ModelResponse struct {
	// Text is the final assistant text.
	Text string

	// Messages are the messages the call added to the conversation:
	// assistant turns and tool results.
	Messages []llm.Message

	Usage llm.TokenUsage
}

// Chunk is a piece of streamed model output. Type is one of
// EventTextDelta, EventToolCall or EventToolResult.
type Chunk struct {
	Type       EventType
	Delta      string
	ToolCall   *llm.ToolCall
	ToolResult *ToolResult
}

// StreamFunc receives chunks while a model call is in progress.
type StreamFunc func(Chunk)

// Model is the capability agent nodes call. Implementations must honor ctx
// cancellation.
type Model interface {
	Generate(ctx context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error) {
	return f(ctx, req, stream)
}
