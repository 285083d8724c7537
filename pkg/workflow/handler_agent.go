package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

// agentHandler calls the model capability with the node's configuration
// and the run's conversation.
type agentHandler struct {
	model        Model
	defaultSteps int
	validator    schema.Validator
}

func (h *agentHandler) Execute(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error) {
	if err := expectType(node, NodeTypeAgent); err != nil {
		return NodeResult{}, err
	}
	data, _ := DataAs[AgentData](node)
	logger := log.WithNodeContext(run.Logger, node.ID, string(node.Type))

	if h.model == nil {
		return NodeResult{}, ErrNoModel
	}

	req := ModelRequest{
		Model:        data.Model,
		SystemPrompt: data.SystemPrompt,
		Messages:     append([]llm.Message(nil), run.Messages...),
		Tools:        data.SelectedTools,
		MaxSteps:     data.MaxSteps,
	}
	if req.MaxSteps == 0 {
		req.MaxSteps = h.defaultSteps
	}
	if data.SourceType.IsStructured() {
		if data.SourceType.Schema == nil {
			return NodeResult{}, fmt.Errorf("schema is required for structured output")
		}
		req.OutputSchema = data.SourceType.Schema
	}

	stream := func(Chunk) {}
	if !data.HideResponseInChat {
		stream = func(c Chunk) {
			run.Emit(ctx, Event{
				Type:       c.Type,
				NodeID:     node.ID,
				NodeType:   node.Type,
				Delta:      c.Delta,
				ToolCall:   c.ToolCall,
				ToolResult: c.ToolResult,
			})
		}
	}

	resp, err := h.model.Generate(ctx, req, stream)
	if err != nil {
		return NodeResult{}, err
	}

	result := ExecutionResult{
		Text:     resp.Text,
		NodeType: NodeTypeAgent,
		Messages: resp.Messages,
	}
	if req.OutputSchema != nil {
		result.Structured = h.parseStructured(resp.Text, req.OutputSchema, logger)
	}

	if !data.ExcludeFromConversation {
		run.Messages = append(run.Messages, resp.Messages...)
	}

	logger.Debug("agent completed",
		slog.String("model", data.Model),
		slog.Int("messages", len(resp.Messages)),
		slog.Int("output_tokens", resp.Usage.OutputTokens))

	run.EmitState(ctx, node, data)

	return NodeResult{Result: result, NextNodeID: firstOutgoing(edges, node.ID)}, nil
}

// parseStructured extracts and checks structured output. Failures are
// logged and yield nil so that downstream branches fall back to text.
func (h *agentHandler) parseStructured(text string, outputSchema map[string]interface{}, logger *slog.Logger) interface{} {
	data, err := schema.ParseJSON(text)
	if err != nil {
		logger.Warn("failed to parse structured output", log.Error(err))
		return nil
	}
	if err := h.validator.Validate(outputSchema, data); err != nil {
		logger.Warn("structured output does not match schema", log.Error(err))
		return nil
	}
	return data
}
