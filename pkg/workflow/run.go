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

package workflow

import (
	"context"
	"log/slog"

	"github.com/tombee/chatflow/pkg/llm"
)

// State is the lifecycle state of a run.
type State string

// Run states
const (
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateValidating: {StateRunning, StateFailed},
	StateRunning:    {StateCompleted, StateFailed},
}

// IsValid checks if a state is valid.
func (s State) IsValid() bool {
	switch s {
	case StateValidating, StateRunning, StateCompleted, StateFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the state is terminal (no further transitions).
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether a run may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ExecutionResult is what a node produced. Results are kept in run memory
// keyed by node id for the duration of the run.
type ExecutionResult struct {
	Text       string        `json:"text"`
	Structured interface{}   `json:"structured,omitempty"`
	NodeType   NodeType      `json:"nodeType"`
	Messages   []llm.Message `json:"messages,omitempty"`
}

// NodeResult is a handler's outcome: the node's result and the id of the
// node to run next, empty when the run should stop.
type NodeResult struct {
	Result     ExecutionResult
	NextNodeID string

	// Finish requests the finish event. The executor emits it after the
	// node's success status so that finish is always the last event.
	Finish bool
}

// RunContext holds all state of a single run. It is owned by one run and
// never shared.
type RunContext struct {
	RunID string

	// Messages is the conversation, extended by agent nodes.
	Messages []llm.Message

	// Memory maps node ids to their results.
	Memory map[string]ExecutionResult

	// PreviousNodeID is the node that ran before the current one.
	PreviousNodeID string

	// Path lists node ids in execution order.
	Path []string

	// Steps counts node executions.
	Steps int

	Logger *slog.Logger

	sink func(ctx context.Context, event Event)
}

// NewRunContext creates a run context over a copy of messages. Events go
// to emit; a nil emit discards them.
func NewRunContext(runID string, messages []llm.Message, logger *slog.Logger, emit func(context.Context, Event)) *RunContext {
	if logger == nil {
		logger = slog.Default()
	}
	conversation := make([]llm.Message, len(messages))
	copy(conversation, messages)
	return &RunContext{
		RunID:    runID,
		Messages: conversation,
		Memory:   make(map[string]ExecutionResult),
		Logger:   logger,
		sink:     emit,
	}
}

// Emit sends an event to the run's sink.
func (r *RunContext) Emit(ctx context.Context, event Event) {
	if r.sink == nil {
		return
	}
	event.RunID = r.RunID
	r.sink(ctx, event)
}

// EmitState publishes a snapshot of a node's data.
func (r *RunContext) EmitState(ctx context.Context, n Node, data NodeData) {
	r.Emit(ctx, Event{
		Type:     EventNodeState,
		NodeID:   n.ID,
		NodeType: n.Type,
		Data:     data,
	})
}

// Previous returns the result of the node that ran before the current one.
func (r *RunContext) Previous() (ExecutionResult, bool) {
	if r.PreviousNodeID == "" {
		return ExecutionResult{}, false
	}
	res, ok := r.Memory[r.PreviousNodeID]
	return res, ok
}

// LatestUserMessage returns the content of the last user message, or an
// empty string when there is none.
func (r *RunContext) LatestUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == llm.MessageRoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID    string                     `json:"runId"`
	State    State                      `json:"state"`
	Path     []string                   `json:"path"`
	Results  map[string]ExecutionResult `json:"results"`
	Messages []llm.Message              `json:"messages"`
	Steps    int                        `json:"steps"`
	Error    string                     `json:"error,omitempty"`

	// Validation is set when the run was rejected before starting.
	Validation *ValidationResult `json:"validation,omitempty"`
}
