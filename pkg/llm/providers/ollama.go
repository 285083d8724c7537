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

package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	cferrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/httpclient"
	"github.com/tombee/chatflow/pkg/llm"
)

const (
	// defaultOllamaURL is the default Ollama API endpoint
	defaultOllamaURL = "http://localhost:11434"

	defaultOllamaTimeout = 5 * time.Minute
)

// OllamaProvider talks to a local or remote Ollama server over /api/chat.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ llm.Provider = (*OllamaProvider)(nil)

// NewOllama is the registered factory for the "ollama" provider. Ollama
// needs no API key; BaseURL and Timeout are optional.
func NewOllama(cfg llm.ProviderConfig) (llm.Provider, error) {
	return NewOllamaProvider(cfg)
}

// NewOllamaProvider creates a new Ollama provider instance.
func NewOllamaProvider(cfg llm.ProviderConfig) (*OllamaProvider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout
	if httpCfg.Timeout <= 0 {
		httpCfg.Timeout = defaultOllamaTimeout
	}
	httpCfg.UserAgent = "chatflow-ollama/1.0"
	httpCfg.RetryPOST = true
	httpCfg.Logger = logger

	httpClient, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OllamaProvider{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Capabilities returns the features supported by this provider.
func (p *OllamaProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming:        true,
		Tools:            true,
		StructuredOutput: true,
	}
}

// DiscoverModels queries Ollama's /api/tags endpoint for installed models.
func (p *OllamaProvider) DiscoverModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &cferrors.ProviderError{Provider: p.Name(), Message: "failed to query models", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var tagsResp ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]string, 0, len(tagsResp.Models))
	for _, model := range tagsResp.Models {
		models = append(models, model.Name)
	}
	return models, nil
}

// Complete sends a non-streaming chat request.
func (p *OllamaProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	calls := convertToolCalls(chatResp.Message.ToolCalls, 0)
	return &llm.CompletionResponse{
		Content:      chatResp.Message.Content,
		ToolCalls:    calls,
		FinishReason: finishReason(chatResp.DoneReason, len(calls) > 0),
		Usage:        chatResp.usage(),
		Model:        chatResp.Model,
	}, nil
}

// Stream sends a streaming chat request. Ollama answers with one JSON
// object per line; the last one has done set and carries the token counts.
func (p *OllamaProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		send := func(chunk llm.StreamChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		calls := 0
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var part ollamaChatResponse
			if err := json.Unmarshal(line, &part); err != nil {
				send(llm.StreamChunk{Error: fmt.Errorf("failed to parse stream chunk: %w", err), FinishReason: llm.FinishReasonError})
				return
			}
			if part.Error != "" {
				send(llm.StreamChunk{Error: &cferrors.ProviderError{Provider: p.Name(), Message: part.Error}, FinishReason: llm.FinishReasonError})
				return
			}

			toolCalls := convertToolCalls(part.Message.ToolCalls, calls)
			calls += len(toolCalls)
			chunk := llm.StreamChunk{Delta: llm.StreamDelta{Content: part.Message.Content, ToolCalls: toolCalls}}
			if part.Done {
				usage := part.usage()
				chunk.Usage = &usage
				chunk.FinishReason = finishReason(part.DoneReason, calls > 0)
			}
			if !send(chunk) || part.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(llm.StreamChunk{Error: fmt.Errorf("reading stream: %w", err), FinishReason: llm.FinishReasonError})
		}
	}()
	return chunks, nil
}

// post sends req to /api/chat and returns the response once the status is
// known to be 200.
func (p *OllamaProvider) post(ctx context.Context, req llm.CompletionRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(buildChatRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &cferrors.ProviderError{Provider: p.Name(), Message: "request failed", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.statusError(resp)
	}
	return resp, nil
}

func (p *OllamaProvider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return &cferrors.ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: msg}
}

func buildChatRequest(req llm.CompletionRequest, stream bool) ollamaChatRequest {
	chatReq := ollamaChatRequest{
		Model:    req.Model,
		Messages: make([]ollamaChatMessage, 0, len(req.Messages)),
		Stream:   stream,
	}
	for _, msg := range req.Messages {
		m := ollamaChatMessage{Role: string(msg.Role), Content: msg.Content}
		for _, call := range msg.ToolCalls {
			args := json.RawMessage("{}")
			if json.Valid([]byte(call.Arguments)) {
				args = json.RawMessage(call.Arguments)
			}
			m.ToolCalls = append(m.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: call.Name, Arguments: args},
			})
		}
		if msg.Role == llm.MessageRoleTool {
			m.ToolName = msg.Name
		}
		chatReq.Messages = append(chatReq.Messages, m)
	}
	for _, tool := range req.Tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		chatReq.Tools = append(chatReq.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	if req.OutputSchema != nil {
		chatReq.Format = req.OutputSchema
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		chatReq.Options = map[string]interface{}{}
		if req.Temperature != nil {
			chatReq.Options["temperature"] = *req.Temperature
		}
		if req.MaxTokens != nil {
			chatReq.Options["num_predict"] = *req.MaxTokens
		}
	}
	return chatReq
}

// convertToolCalls maps Ollama tool calls to llm.ToolCall. Ollama does not
// assign call ids, so ids are numbered from offset within one response.
func convertToolCalls(calls []ollamaToolCall, offset int) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for i, call := range calls {
		args := strings.TrimSpace(string(call.Function.Arguments))
		if args == "" || args == "null" {
			args = "{}"
		}
		out = append(out, llm.ToolCall{
			ID:        fmt.Sprintf("call_%d", offset+i+1),
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out
}

func finishReason(doneReason string, toolCalls bool) llm.FinishReason {
	switch {
	case toolCalls:
		return llm.FinishReasonToolCalls
	case doneReason == "length":
		return llm.FinishReasonLength
	default:
		return llm.FinishReasonStop
	}
}

// ollamaTagsResponse represents the response from GET /api/tags
type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// ollamaChatRequest represents a request to POST /api/chat
type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaChatMessage    `json:"messages"`
	Tools    []ollamaTool           `json:"tools,omitempty"`
	Format   interface{}            `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Stream   bool                   `json:"stream"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ollamaChatResponse is the reply to POST /api/chat, and also one line of a
// streamed reply.
type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	DoneReason      string            `json:"done_reason"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
	Error           string            `json:"error,omitempty"`
}

func (r ollamaChatResponse) usage() llm.TokenUsage {
	return llm.TokenUsage{
		InputTokens:  r.PromptEvalCount,
		OutputTokens: r.EvalCount,
		TotalTokens:  r.PromptEvalCount + r.EvalCount,
	}
}
