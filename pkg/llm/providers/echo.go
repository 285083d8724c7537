package providers

import (
	"context"
	"strings"

	"github.com/tombee/chatflow/pkg/llm"
)

// EchoProvider answers without a model. It replies with the last user
// message, or with an empty JSON object when the request asks for
// structured output. It backs offline runs and tests.
type EchoProvider struct{}

var _ llm.Provider = EchoProvider{}

// NewEcho is the registered factory for the "echo" provider.
func NewEcho(llm.ProviderConfig) (llm.Provider, error) {
	return EchoProvider{}, nil
}

func (EchoProvider) Name() string { return "echo" }

func (EchoProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, StructuredOutput: true}
}

func (p EchoProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := p.reply(req)
	return &llm.CompletionResponse{
		Content:      text,
		FinishReason: llm.FinishReasonStop,
		Usage:        echoUsage(req, text),
		Model:        req.Model,
	}, nil
}

// Stream emits the reply one word at a time.
func (p EchoProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := p.reply(req)
	words := strings.SplitAfter(text, " ")

	chunks := make(chan llm.StreamChunk, len(words)+1)
	for _, w := range words {
		if w != "" {
			chunks <- llm.StreamChunk{Delta: llm.StreamDelta{Content: w}}
		}
	}
	usage := echoUsage(req, text)
	chunks <- llm.StreamChunk{FinishReason: llm.FinishReasonStop, Usage: &usage}
	close(chunks)
	return chunks, nil
}

func (EchoProvider) reply(req llm.CompletionRequest) string {
	if req.OutputSchema != nil {
		return "{}"
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.MessageRoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func echoUsage(req llm.CompletionRequest, text string) llm.TokenUsage {
	in := 0
	for _, m := range req.Messages {
		in += len(strings.Fields(m.Content))
	}
	out := len(strings.Fields(text))
	return llm.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
