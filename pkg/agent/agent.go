// Package agent runs the model side of agent nodes.
//
// The runner implements workflow.Model with a step-limited loop that:
// 1. Sends the conversation to an LLM provider
// 2. Receives a response (which may include tool calls)
// 3. Executes requested tools
// 4. Feeds tool results back to the LLM
// 5. Repeats until the LLM stops calling tools or the step budget is spent
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/tools"
	"github.com/tombee/chatflow/pkg/workflow"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

// Runner answers agent node requests with an LLM provider and the tool
// registry. It is safe for concurrent use.
type Runner struct {
	provider  llm.Provider
	registry  *tools.Registry
	config    Config
	context   *ContextManager
	validator schema.Validator
	logger    *slog.Logger
}

var _ workflow.Model = (*Runner)(nil)

// NewRunner creates a runner. A nil registry means no tools are available.
func NewRunner(provider llm.Provider, registry *tools.Registry, cfg Config) *Runner {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	cfg = cfg.WithDefaults()
	return &Runner{
		provider:  provider,
		registry:  registry,
		config:    cfg,
		context:   NewContextManager(cfg.ContextTokens),
		validator: schema.NewValidator(),
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the runner.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// ToolExecution records a single tool execution.
type ToolExecution struct {
	ToolName string
	Inputs   map[string]interface{}
	Outputs  map[string]interface{}
	Success  bool
	Error    string
	Duration time.Duration
}

// Generate runs the tool loop for one agent node.
func (r *Runner) Generate(ctx context.Context, req workflow.ModelRequest, stream workflow.StreamFunc) (*workflow.ModelResponse, error) {
	if stream == nil {
		stream = func(workflow.Chunk) {}
	}
	model := req.Model
	if model == "" {
		model = r.config.DefaultModel
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.config.MaxSteps
	}
	logger := r.logger.With(slog.String(log.ProviderKey, r.provider.Name()), slog.String("model", model))

	defs, missing := r.registry.Definitions(req.Tools)
	for _, id := range missing {
		logger.Warn("selected tool is not registered", slog.String(log.ToolKey, id))
	}
	if len(defs) > 0 && !r.provider.Capabilities().Tools {
		logger.Warn("provider does not support tools; ignoring selection", slog.Int("tools", len(defs)))
		defs = nil
	}

	system := req.SystemPrompt
	if req.OutputSchema != nil {
		system = joinPrompt(system, schema.BuildPromptWithSchema("", req.OutputSchema, 0))
	}

	var (
		added []llm.Message
		usage llm.TokenUsage
		text  string
	)
	for step := 1; ; step++ {
		resp, err := r.complete(ctx, llm.CompletionRequest{
			Model:        model,
			Messages:     r.conversation(system, req.Messages, added),
			Tools:        defs,
			OutputSchema: req.OutputSchema,
		}, stream)
		if err != nil {
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}
		usage = usage.Add(resp.Usage)
		text = resp.Content

		added = append(added, llm.Message{
			Role:      llm.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, call := range resp.ToolCalls {
			added = append(added, r.callTool(ctx, call, stream, logger))
		}

		if step >= maxSteps {
			logger.Warn("step budget spent while the model was still calling tools", slog.Int("steps", maxSteps))
			break
		}
	}

	if req.OutputSchema != nil {
		retried, extra, err := r.conformToSchema(ctx, model, system, req, added, text, logger)
		if err != nil {
			return nil, err
		}
		usage = usage.Add(extra)
		if retried != "" {
			text = retried
			added = replaceReply(added, retried)
		}
	}

	logger.Debug("model call completed",
		slog.Int("messages", len(added)),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("output_tokens", usage.OutputTokens))

	return &workflow.ModelResponse{Text: text, Messages: added, Usage: usage}, nil
}

// complete makes one model call, streaming text deltas when the provider
// supports it.
func (r *Runner) complete(ctx context.Context, req llm.CompletionRequest, stream workflow.StreamFunc) (*llm.CompletionResponse, error) {
	if !r.provider.Capabilities().Streaming {
		resp, err := r.provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Content != "" {
			stream(workflow.Chunk{Type: workflow.EventTextDelta, Delta: resp.Content})
		}
		return resp, nil
	}

	chunks, err := r.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(ctx, chunks, func(d llm.StreamDelta) {
		if d.Content != "" {
			stream(workflow.Chunk{Type: workflow.EventTextDelta, Delta: d.Content})
		}
	})
}

// conversation builds the message list for a call: the system prompt, the
// run's conversation and the messages added so far, pruned to fit.
func (r *Runner) conversation(system string, history, added []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+len(added)+1)
	if system != "" {
		messages = append(messages, llm.Message{Role: llm.MessageRoleSystem, Content: system})
	}
	messages = append(messages, history...)
	messages = append(messages, added...)

	if r.context.ShouldPrune(messages) {
		messages = r.context.Prune(messages)
	}
	return messages
}

// conformToSchema asks the model again, with increasingly strict
// instructions, while the reply does not match the output schema. It
// returns the corrected text, or "" when no retry produced a match.
func (r *Runner) conformToSchema(ctx context.Context, model, system string, req workflow.ModelRequest, added []llm.Message, text string, logger *slog.Logger) (string, llm.TokenUsage, error) {
	var usage llm.TokenUsage
	if r.matchesSchema(text, req.OutputSchema) {
		return "", usage, nil
	}

	history := append([]llm.Message(nil), added...)
	for attempt := 1; attempt <= r.config.SchemaRetries; attempt++ {
		logger.Debug("structured reply did not match schema; retrying", slog.Int("attempt", attempt))
		history = append(history, llm.Message{
			Role:    llm.MessageRoleUser,
			Content: schema.BuildPromptWithSchema("", req.OutputSchema, attempt),
		})
		resp, err := r.complete(ctx, llm.CompletionRequest{
			Model:        model,
			Messages:     r.conversation(system, req.Messages, history),
			OutputSchema: req.OutputSchema,
		}, func(workflow.Chunk) {})
		if err != nil {
			return "", usage, fmt.Errorf("LLM call failed: %w", err)
		}
		usage = usage.Add(resp.Usage)
		if r.matchesSchema(resp.Content, req.OutputSchema) {
			return resp.Content, usage, nil
		}
		history = append(history, llm.Message{Role: llm.MessageRoleAssistant, Content: resp.Content})
	}
	return "", usage, nil
}

// replaceReply puts a corrected reply in place of the model's final answer.
// When the step budget ran out mid tool calls the transcript ends in tool
// results, so the reply is appended as a new assistant message instead.
func replaceReply(added []llm.Message, reply string) []llm.Message {
	if n := len(added); n > 0 && added[n-1].Role == llm.MessageRoleAssistant && len(added[n-1].ToolCalls) == 0 {
		added[n-1].Content = reply
		return added
	}
	return append(added, llm.Message{Role: llm.MessageRoleAssistant, Content: reply})
}

func (r *Runner) matchesSchema(text string, outputSchema map[string]interface{}) bool {
	data, err := schema.ParseJSON(text)
	if err != nil {
		return false
	}
	return r.validator.Validate(outputSchema, data) == nil
}

// callTool executes one tool call and returns the tool message for the
// conversation. Failures are reported to the model, not to the caller.
func (r *Runner) callTool(ctx context.Context, call llm.ToolCall, stream workflow.StreamFunc, logger *slog.Logger) llm.Message {
	callCopy := call
	stream(workflow.Chunk{Type: workflow.EventToolCall, ToolCall: &callCopy})

	execution := r.executeTool(ctx, call)
	result := &workflow.ToolResult{ToolCallID: call.ID, Name: call.Name}
	if execution.Success {
		result.Output = execution.Outputs
	} else {
		result.Error = execution.Error
		logger.Warn("tool call failed", slog.String(log.ToolKey, call.Name), slog.String("error", execution.Error))
	}
	stream(workflow.Chunk{Type: workflow.EventToolResult, ToolResult: result})

	return llm.Message{
		Role:       llm.MessageRoleTool,
		Content:    formatToolResult(execution),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// executeTool executes a single tool call.
func (r *Runner) executeTool(ctx context.Context, call llm.ToolCall) ToolExecution {
	start := time.Now()
	execution := ToolExecution{ToolName: call.Name}

	inputs, err := ParseArguments(call.Arguments)
	if err != nil {
		execution.Error = err.Error()
		execution.Duration = time.Since(start)
		return execution
	}
	execution.Inputs = inputs

	ctx, cancel := context.WithTimeout(ctx, r.config.ToolTimeout)
	defer cancel()

	outputs, err := r.registry.Execute(ctx, call.Name, inputs)
	execution.Duration = time.Since(start)
	if err != nil {
		execution.Error = err.Error()
		return execution
	}

	execution.Success = true
	execution.Outputs = outputs
	return execution
}

// ParseArguments decodes a tool call's JSON arguments. Models often emit
// almost-JSON (trailing commas, single quotes, unclosed braces), so a
// failed decode is retried once on the repaired text.
func ParseArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	var inputs map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &inputs); err == nil {
		if inputs == nil {
			inputs = map[string]interface{}{}
		}
		return inputs, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	var fixed map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &fixed); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if fixed == nil {
		return nil, fmt.Errorf("invalid tool arguments: expected an object")
	}
	return fixed, nil
}

// formatToolResult formats a tool execution result for the conversation.
func formatToolResult(execution ToolExecution) string {
	if !execution.Success {
		return fmt.Sprintf("Error executing %s: %s", execution.ToolName, execution.Error)
	}
	out, err := json.Marshal(execution.Outputs)
	if err != nil {
		return fmt.Sprintf("Tool %s completed successfully: %v", execution.ToolName, execution.Outputs)
	}
	return string(out)
}

func joinPrompt(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
