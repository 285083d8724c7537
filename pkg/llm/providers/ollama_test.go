package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/llm"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOllamaProvider(llm.ProviderConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return p
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatRequest
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"llama3.2","message":{"role":"assistant","content":"hi there"},"done":true,"done_reason":"stop","prompt_eval_count":7,"eval_count":3}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model: "llama3.2",
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "be brief"},
			{Role: llm.MessageRoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, llm.TokenUsage{InputTokens: 7, OutputTokens: 3, TotalTokens: 10}, resp.Usage)

	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Empty(t, got.Tools)
}

func TestOllamaCompleteWithTools(t *testing.T) {
	var got ollamaChatRequest
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"wikipedia-query","arguments":{"query":"go"}}}]},"done":true}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model: "llama3.2",
		Messages: []llm.Message{
			{Role: llm.MessageRoleUser, Content: "look it up"},
			{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "lookup", Arguments: `{"q":1}`}}},
			{Role: llm.MessageRoleTool, Content: `{"a":1}`, ToolCallID: "call_1", Name: "lookup"},
		},
		Tools: []llm.Tool{{Name: "wikipedia-query", Description: "search"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "wikipedia-query", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"go"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "object", got.Tools[0].Function.Parameters["type"])
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.JSONEq(t, `{"q":1}`, string(got.Messages[1].ToolCalls[0].Function.Arguments))
	assert.Equal(t, "lookup", got.Messages[2].ToolName)
}

func TestOllamaStructuredOutputAndOptions(t *testing.T) {
	var raw map[string]interface{}
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"{}"},"done":true}`)
	})

	temp := 0.2
	maxTokens := 64
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model:        "llama3.2",
		Messages:     []llm.Message{{Role: llm.MessageRoleUser, Content: "x"}},
		OutputSchema: map[string]interface{}{"type": "object"},
		Temperature:  &temp,
		MaxTokens:    &maxTokens,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"type": "object"}, raw["format"])
	opts, ok := raw["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.2, opts["temperature"])
	assert.Equal(t, float64(64), opts["num_predict"])
}

func TestOllamaStatusError(t *testing.T) {
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"nope\" not found"}`)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Model: "nope"})
	require.Error(t, err)

	var perr *cferrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ollama", perr.Provider)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Equal(t, `model "nope" not found`, perr.Message)

	_, err = p.Stream(context.Background(), llm.CompletionRequest{Model: "nope"})
	require.ErrorAs(t, err, &perr)
}

func TestOllamaStream(t *testing.T) {
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`)
	})

	chunks, err := p.Stream(context.Background(), llm.CompletionRequest{Model: "llama3.2"})
	require.NoError(t, err)

	var deltas []string
	resp, err := llm.Collect(context.Background(), chunks, func(d llm.StreamDelta) {
		deltas = append(deltas, d.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestOllamaStreamToolCallsAndErrors(t *testing.T) {
	t.Run("tool calls numbered across lines", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"a","arguments":{}}}]},"done":false}`)
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"b"}}]},"done":true}`)
		})
		chunks, err := p.Stream(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		resp, err := llm.Collect(context.Background(), chunks, nil)
		require.NoError(t, err)

		require.Len(t, resp.ToolCalls, 2)
		assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
		assert.Equal(t, "call_2", resp.ToolCalls[1].ID)
		assert.Equal(t, "{}", resp.ToolCalls[1].Arguments)
		assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)
	})

	t.Run("error line", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"par"},"done":false}`)
			fmt.Fprintln(w, `{"error":"out of memory"}`)
		})
		chunks, err := p.Stream(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		_, err = llm.Collect(context.Background(), chunks, nil)

		var perr *cferrors.ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "out of memory", perr.Message)
	})

	t.Run("malformed line", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `not json`)
		})
		chunks, err := p.Stream(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		_, err = llm.Collect(context.Background(), chunks, nil)
		assert.ErrorContains(t, err, "failed to parse stream chunk")
	})
}

func TestOllamaDiscoverModels(t *testing.T) {
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest"},{"name":"qwen2.5:7b"}]}`)
	})

	models, err := p.DiscoverModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "qwen2.5:7b"}, models)
}

func TestNewOllamaDefaults(t *testing.T) {
	p, err := NewOllamaProvider(llm.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaURL, p.baseURL)
	assert.Equal(t, defaultOllamaTimeout, p.httpClient.Timeout)
	assert.Equal(t, "ollama", p.Name())
	assert.True(t, p.Capabilities().Streaming)
	assert.True(t, p.Capabilities().Tools)
}
