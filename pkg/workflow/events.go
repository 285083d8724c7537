package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/chatflow/pkg/llm"
)

// EventType tags an event in a run's event stream.
type EventType string

const (
	// EventNodeStatus reports a node status transition.
	EventNodeStatus EventType = "node-execution-status"

	// EventNodeState carries a snapshot of a node's data.
	EventNodeState EventType = "node-execution-state"

	// EventFinish is emitted when an end node completes.
	EventFinish EventType = "finish"

	// EventTextDelta forwards streamed model text.
	EventTextDelta EventType = "text-delta"

	// EventToolCall forwards a model tool invocation.
	EventToolCall EventType = "tool-call"

	// EventToolResult forwards the output of a tool invocation.
	EventToolResult EventType = "tool-result"

	// EventAny registers an EventEmitter listener for every event type.
	EventAny EventType = "*"
)

// ToolResult is the outcome of a tool invocation made by a model.
type ToolResult struct {
	ToolCallID string      `json:"toolCallId"`
	Name       string      `json:"name"`
	Output     interface{} `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Event is one entry in a run's event stream. Which fields are set depends
// on Type.
type Event struct {
	Type       EventType     `json:"type"`
	RunID      string        `json:"runId,omitempty"`
	NodeID     string        `json:"nodeId,omitempty"`
	NodeType   NodeType      `json:"nodeType,omitempty"`
	Name       string        `json:"name,omitempty"`
	Status     NodeStatus    `json:"status,omitempty"`
	Error      string        `json:"error,omitempty"`
	Data       NodeData      `json:"data,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	ToolCall   *llm.ToolCall `json:"toolCall,omitempty"`
	ToolResult *ToolResult   `json:"toolResult,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Sink receives run events in order. A failing sink does not stop a run.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Discard is a sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// EventListener handles events dispatched by an EventEmitter.
type EventListener func(ctx context.Context, event Event) error

// EventEmitter is a Sink that fans events out to listeners registered per
// event type or for every type with EventAny.
type EventEmitter struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventListener
	async     bool // If true, listeners of one event run concurrently
}

// NewEventEmitter creates a new event emitter. With async set, the
// listeners for a single event run concurrently; Emit still returns only
// after all of them finish, so event order is preserved.
func NewEventEmitter(async bool) *EventEmitter {
	return &EventEmitter{
		listeners: make(map[EventType][]EventListener),
		async:     async,
	}
}

// On registers an event listener for the specified event type.
func (e *EventEmitter) On(eventType EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// OnAny registers a listener for every event type.
func (e *EventEmitter) OnAny(listener EventListener) {
	e.On(EventAny, listener)
}

// Off removes all listeners for the event type.
func (e *EventEmitter) Off(eventType EventType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.listeners, eventType)
}

// Emit dispatches an event to its type listeners, then to wildcard
// listeners. It returns the last listener error.
func (e *EventEmitter) Emit(ctx context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	listeners := make([]EventListener, 0, len(e.listeners[event.Type])+len(e.listeners[EventAny]))
	listeners = append(listeners, e.listeners[event.Type]...)
	listeners = append(listeners, e.listeners[EventAny]...)
	e.mu.RUnlock()

	if e.async {
		return e.emitAsync(ctx, event, listeners)
	}
	return e.emitSync(ctx, event, listeners)
}

func (e *EventEmitter) emitSync(ctx context.Context, event Event, listeners []EventListener) error {
	var lastError error
	for _, listener := range listeners {
		// Continue calling other listeners even if one fails
		if err := listener(ctx, event); err != nil {
			lastError = err
		}
	}
	return lastError
}

func (e *EventEmitter) emitAsync(ctx context.Context, event Event, listeners []EventListener) error {
	var wg sync.WaitGroup
	errChan := make(chan error, len(listeners))

	for _, listener := range listeners {
		wg.Add(1)
		go func(l EventListener) {
			defer wg.Done()
			if err := l(ctx, event); err != nil {
				errChan <- err
			}
		}(listener)
	}

	wg.Wait()
	close(errChan)

	var lastError error
	for err := range errChan {
		lastError = err
	}
	return lastError
}

// ListenerCount returns the number of listeners for a given event type.
func (e *EventEmitter) ListenerCount(eventType EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.listeners[eventType])
}

// RemoveAllListeners removes all listeners for all event types.
func (e *EventEmitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = make(map[EventType][]EventListener)
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records event.
func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Statuses returns the recorded status events for nodeID, or for every
// node when nodeID is empty.
func (r *Recorder) Statuses(nodeID string) []NodeStatus {
	var out []NodeStatus
	for _, ev := range r.OfType(EventNodeStatus) {
		if nodeID == "" || ev.NodeID == nodeID {
			out = append(out, ev.Status)
		}
	}
	return out
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// ChannelSink delivers events to a channel. Emit blocks until the event is
// received or ctx ends.
type ChannelSink struct {
	ch chan<- Event
}

// NewChannelSink creates a sink writing to ch. The caller owns ch and
// closes it after the run returns.
func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Emit sends event on the channel.
func (s *ChannelSink) Emit(ctx context.Context, event Event) error {
	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
