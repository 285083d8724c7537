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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow"
)

const maxBodyBytes = 4 << 20

// EventError is streamed when a run fails after it started.
const EventError workflow.EventType = "error"

// EventInvalidGraph is sent on the WebSocket when the submitted graph does
// not validate.
const EventInvalidGraph workflow.EventType = "invalid-graph"

// ChatRequest is the body of POST /v1/chat and the first WebSocket message.
type ChatRequest struct {
	ID       string          `json:"id,omitempty"`
	Messages []llm.Message   `json:"messages"`
	Nodes    []workflow.Node `json:"nodes"`
	Edges    []workflow.Edge `json:"edges"`
}

func (c ChatRequest) runRequest() workflow.RunRequest {
	return workflow.RunRequest{
		RunID:    c.ID,
		Nodes:    c.Nodes,
		Edges:    c.Edges,
		Messages: c.Messages,
	}
}

// invalidGraphMessage is the WebSocket counterpart of the 422 response.
type invalidGraphMessage struct {
	Type       workflow.EventType         `json:"type"`
	Validation *workflow.ValidationResult `json:"validation"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// sseSink writes events as Server-Sent Events. Model streaming may emit from
// another goroutine, so writes are serialized.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Emit(_ context.Context, event workflow.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writeData(payload)
}

func (s *sseSink) writeData(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if result := workflow.Validate(req.Nodes, req.Edges); !result.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	result, err := s.executor.Run(ctx, req.runRequest(), sink)
	if err != nil {
		s.logger.Warn("chat run failed", slog.String(log.RunIDKey, runID(result)), log.Error(err))
		_ = sink.Emit(ctx, workflow.Event{
			Type:      EventError,
			RunID:     runID(result),
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
	}
	_ = sink.writeData([]byte("[DONE]"))
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", log.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	var req ChatRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	if result := workflow.Validate(req.Nodes, req.Edges); !result.Valid {
		_ = wsjson.Write(ctx, conn, invalidGraphMessage{Type: EventInvalidGraph, Validation: result})
		conn.Close(websocket.StatusNormalClosure, "invalid graph")
		return
	}

	var mu sync.Mutex
	sink := workflow.SinkFunc(func(ctx context.Context, event workflow.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return wsjson.Write(ctx, conn, event)
	})

	result, err := s.executor.Run(ctx, req.runRequest(), sink)
	if err != nil {
		s.logger.Warn("websocket run failed", slog.String(log.RunIDKey, runID(result)), log.Error(err))
		_ = sink.Emit(ctx, workflow.Event{
			Type:      EventError,
			RunID:     runID(result),
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
	}
	conn.Close(websocket.StatusNormalClosure, "run finished")
}

func runID(result *workflow.RunResult) string {
	if result == nil {
		return ""
	}
	return result.RunID
}
