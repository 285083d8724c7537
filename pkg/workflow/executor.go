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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow/expression"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

const (
	// DefaultMaxSteps is the default ceiling on node executions per run.
	DefaultMaxSteps = 100

	// DefaultTickInterval is how often wait nodes publish their countdown.
	DefaultTickInterval = 100 * time.Millisecond

	tracerName = "github.com/tombee/chatflow/pkg/workflow"
)

// Metrics records run and node outcomes.
type Metrics interface {
	RecordRun(ctx context.Context, state State, duration time.Duration)
	RecordNode(ctx context.Context, nodeType NodeType, status NodeStatus, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(context.Context, State, time.Duration)                 {}
func (noopMetrics) RecordNode(context.Context, NodeType, NodeStatus, time.Duration) {}

// RunRequest is the input to a run.
type RunRequest struct {
	// RunID identifies the run in events and logs. A UUID is generated
	// when empty.
	RunID string

	Nodes    []Node
	Edges    []Edge
	Messages []llm.Message
}

// Executor validates graphs and walks them node by node. It holds no run
// state and is safe for concurrent runs.
type Executor struct {
	model      Model
	logger     *slog.Logger
	maxSteps   int
	agentSteps int
	clock      Clock
	tick       time.Duration
	eval       *expression.Evaluator
	tracer     trace.Tracer
	metrics    Metrics
}

// NewExecutor creates an executor that calls model for agent nodes.
func NewExecutor(model Model) *Executor {
	return &Executor{
		model:      model,
		logger:     slog.Default(),
		maxSteps:   DefaultMaxSteps,
		agentSteps: defaultAgentMaxSteps,
		clock:      RealClock(),
		tick:       DefaultTickInterval,
		eval:       expression.New(),
		tracer:     otel.Tracer(tracerName),
		metrics:    noopMetrics{},
	}
}

// WithLogger sets a custom logger for the executor.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithMaxSteps sets the ceiling on node executions per run.
func (e *Executor) WithMaxSteps(n int) *Executor {
	if n <= 0 {
		n = DefaultMaxSteps
	}
	e.maxSteps = n
	return e
}

// WithDefaultAgentSteps sets the model step budget used when an agent node
// leaves maxSteps unset.
func (e *Executor) WithDefaultAgentSteps(n int) *Executor {
	if n >= 1 && n <= maxAgentSteps {
		e.agentSteps = n
	}
	return e
}

// WithClock replaces the clock used by wait nodes and event timestamps.
func (e *Executor) WithClock(c Clock) *Executor {
	if c != nil {
		e.clock = c
	}
	return e
}

// WithTickInterval sets how often wait nodes publish their countdown.
func (e *Executor) WithTickInterval(d time.Duration) *Executor {
	if d > 0 {
		e.tick = d
	}
	return e
}

// WithTracer sets the tracer for run and node spans.
func (e *Executor) WithTracer(t trace.Tracer) *Executor {
	if t != nil {
		e.tracer = t
	}
	return e
}

// WithMetrics sets the metrics recorder.
func (e *Executor) WithMetrics(m Metrics) *Executor {
	if m != nil {
		e.metrics = m
	}
	return e
}

// Run validates the graph and executes it from the start node, sending
// events to sink. It returns when an end node completes, a node has no
// next node, or a node fails. An invalid graph yields *InvalidGraphError
// before any event is emitted. The returned RunResult is non-nil in every
// case.
func (e *Executor) Run(ctx context.Context, req RunRequest, sink Sink) (*RunResult, error) {
	if sink == nil {
		sink = Discard
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := log.WithRunContext(e.logger, runID)
	began := time.Now()

	result := &RunResult{
		RunID:   runID,
		State:   StateValidating,
		Path:    []string{},
		Results: map[string]ExecutionResult{},
	}

	validation := Validate(req.Nodes, req.Edges)
	if !validation.Valid {
		err := &InvalidGraphError{Result: validation}
		result.State = StateFailed
		result.Validation = validation
		result.Error = err.Error()
		result.Messages = req.Messages
		logger.Warn("workflow validation failed", slog.Int("errors", len(validation.Errors)))
		e.metrics.RecordRun(ctx, StateFailed, time.Since(began))
		return result, err
	}
	for _, w := range validation.Warnings {
		logger.Warn("workflow warning", slog.String("kind", string(w.Type)), slog.String("message", w.Message))
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.run_id", runID),
			attribute.Int("workflow.nodes", len(req.Nodes)),
			attribute.Int("workflow.edges", len(req.Edges)),
		),
	)
	defer span.End()

	emit := func(ctx context.Context, ev Event) {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = e.clock.Now()
		}
		if err := sink.Emit(ctx, ev); err != nil {
			logger.Warn("event sink failed", slog.String(log.EventKey, string(ev.Type)), log.Error(err))
		}
	}
	run := NewRunContext(runID, req.Messages, logger, emit)

	result.State = StateRunning
	logger.Info("workflow run started")

	err := e.walk(ctx, req, run)

	result.Path = run.Path
	result.Results = run.Memory
	result.Messages = run.Messages
	result.Steps = run.Steps

	if err != nil {
		result.State = StateFailed
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("workflow run failed", slog.Int("steps", run.Steps), log.Error(err))
	} else {
		result.State = StateCompleted
		span.SetStatus(codes.Ok, "")
		logger.Info("workflow run completed",
			slog.Int("steps", run.Steps),
			slog.Int64(log.DurationKey, time.Since(began).Milliseconds()))
	}
	e.metrics.RecordRun(ctx, result.State, time.Since(began))
	return result, err
}

func (e *Executor) walk(ctx context.Context, req RunRequest, run *RunContext) error {
	var current string
	for _, n := range req.Nodes {
		if n.Is(NodeTypeStart) {
			current = n.ID
			break
		}
	}

	for current != "" {
		node, found := findNode(req.Nodes, current)
		if !found {
			node = Node{ID: current}
		}

		var fatal error
		switch {
		case run.Steps >= e.maxSteps:
			fatal = ErrStepBudgetExceeded
		case !found:
			fatal = ErrNodeNotFound
		case node.Is(NodeTypeNote):
			fatal = ErrNoteExecution
		}
		if fatal != nil {
			err := nodeError(node, fatal)
			e.emitStatus(context.WithoutCancel(ctx), run, node, StatusError, err)
			return err
		}

		run.Steps++
		run.Path = append(run.Path, node.ID)

		res, err := e.executeNode(ctx, node, req.Edges, run)
		if err != nil {
			return err
		}

		run.Memory[node.ID] = res.Result
		run.PreviousNodeID = node.ID
		current = res.NextNodeID
	}
	return nil
}

func (e *Executor) executeNode(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
		),
	)
	defer span.End()

	began := time.Now()
	e.emitStatus(ctx, run, node, StatusProcessing, nil)

	res, err := e.dispatch(ctx, node, edges, run)
	elapsed := time.Since(began)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.emitStatus(context.WithoutCancel(ctx), run, node, StatusError, err)
		e.metrics.RecordNode(ctx, node.Type, StatusError, elapsed)
		return NodeResult{}, err
	}

	e.emitStatus(ctx, run, node, StatusSuccess, nil)
	if res.Finish {
		run.Emit(ctx, Event{Type: EventFinish})
	}
	e.metrics.RecordNode(ctx, node.Type, StatusSuccess, elapsed)
	log.WithNodeContext(run.Logger, node.ID, string(node.Type)).Debug("node completed",
		slog.Int64(log.DurationKey, elapsed.Milliseconds()),
		slog.String("next", res.NextNodeID))
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error) {
	var h NodeHandler
	switch node.Type {
	case NodeTypeStart:
		h = startHandler{}
	case NodeTypeAgent:
		h = &agentHandler{model: e.model, defaultSteps: e.agentSteps, validator: schema.NewValidator()}
	case NodeTypeBranch:
		h = &branchHandler{eval: e.eval}
	case NodeTypeWait:
		h = &waitHandler{clock: e.clock, tick: e.tick}
	case NodeTypeEnd:
		h = endHandler{}
	default:
		return NodeResult{}, nodeError(node, fmt.Errorf("unknown node type %q", node.Type))
	}
	return h.Execute(ctx, node, edges, run)
}

func (e *Executor) emitStatus(ctx context.Context, run *RunContext, node Node, status NodeStatus, err error) {
	ev := Event{
		Type:     EventNodeStatus,
		NodeID:   node.ID,
		NodeType: node.Type,
		Name:     node.DisplayName(),
		Status:   status,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	run.Emit(ctx, ev)
}
