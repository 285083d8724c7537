package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/tombee/chatflow/pkg/errors"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string               { return s.name }
func (s *stubProvider) Capabilities() Capabilities { return Capabilities{} }
func (s *stubProvider) Complete(context.Context, CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{}, nil
}
func (s *stubProvider) Stream(context.Context, CompletionRequest) (<-chan StreamChunk, error) {
	return nil, errors.New("unsupported")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("b", func(cfg ProviderConfig) (Provider, error) { return &stubProvider{name: "b"}, nil })
	r.RegisterFactory("a", func(cfg ProviderConfig) (Provider, error) { return nil, errors.New("no key") })

	assert.Equal(t, []string{"a", "b"}, r.Names())

	p, err := r.Create("b", ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name())

	_, err = r.Create("a", ProviderConfig{})
	assert.ErrorContains(t, err, "creating provider a: no key")

	_, err = r.Create("missing", ProviderConfig{})
	var nf *cferrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "provider", nf.Resource)
}

func TestCollect(t *testing.T) {
	chunks := make(chan StreamChunk, 4)
	chunks <- StreamChunk{Delta: StreamDelta{Content: "Hel"}}
	chunks <- StreamChunk{Delta: StreamDelta{Content: "lo"}}
	chunks <- StreamChunk{Delta: StreamDelta{ToolCalls: []ToolCall{{ID: "1", Name: "wikipedia-query", Arguments: `{}`}}}}
	chunks <- StreamChunk{Usage: &TokenUsage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}}
	close(chunks)

	var deltas []StreamDelta
	resp, err := Collect(context.Background(), chunks, func(d StreamDelta) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, FinishReasonToolCalls, resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Len(t, deltas, 3)
}

func TestCollectError(t *testing.T) {
	chunks := make(chan StreamChunk, 2)
	chunks <- StreamChunk{Delta: StreamDelta{Content: "partial"}}
	chunks <- StreamChunk{Error: errors.New("connection reset")}
	close(chunks)

	_, err := Collect(context.Background(), chunks, nil)
	assert.EqualError(t, err, "connection reset")
}

func TestCollectContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, make(chan StreamChunk), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
