package llm

import (
	"context"
	"strings"
)

// Collect drains a stream into a CompletionResponse, calling onDelta for
// every chunk that carries content or tool calls. It returns the first
// stream error, or ctx.Err() if the context ends first.
func Collect(ctx context.Context, chunks <-chan StreamChunk, onDelta func(StreamDelta)) (*CompletionResponse, error) {
	var (
		text strings.Builder
		resp CompletionResponse
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				resp.Content = text.String()
				if resp.FinishReason == "" {
					resp.FinishReason = FinishReasonStop
					if len(resp.ToolCalls) > 0 {
						resp.FinishReason = FinishReasonToolCalls
					}
				}
				return &resp, nil
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Delta.Content != "" || len(chunk.Delta.ToolCalls) > 0 {
				text.WriteString(chunk.Delta.Content)
				resp.ToolCalls = append(resp.ToolCalls, chunk.Delta.ToolCalls...)
				if onDelta != nil {
					onDelta(chunk.Delta)
				}
			}
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				resp.Usage = resp.Usage.Add(*chunk.Usage)
			}
		}
	}
}
