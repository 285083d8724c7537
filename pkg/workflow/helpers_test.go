package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/llm"
)

// fakeClock advances by the requested duration on every After call.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// blockingClock never fires.
type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Time{} }
func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func startNode(id string) Node {
	return Node{ID: id, Type: NodeTypeStart, Data: StartData{SourceType: OutputShape{Type: OutputText}}}
}

func endNode(id string) Node {
	return Node{ID: id, Type: NodeTypeEnd, Data: EndData{}}
}

func agentNode(id, name string) Node {
	return Node{ID: id, Type: NodeTypeAgent, Data: AgentData{
		Name:       name,
		Model:      "llama3.2",
		SourceType: OutputShape{Type: OutputText},
	}}
}

func waitNode(id string, timeoutMs int64) Node {
	return Node{ID: id, Type: NodeTypeWait, Data: WaitData{TimeoutMs: timeoutMs}}
}

func noteNode(id string) Node {
	return Node{ID: id, Type: NodeTypeNote, Data: NoteData{Content: "remember"}}
}

func branchNode(id string, handles ...ConditionHandle) Node {
	return Node{ID: id, Type: NodeTypeBranch, Data: BranchData{DynamicSourceHandles: handles}}
}

func cond(id, expr string) ConditionHandle {
	return ConditionHandle{ID: id, Label: id, Condition: expr}
}

// edge connects two nodes through their single handles, or through the
// given source handle for branch nodes.
func edge(source, target Node, sourceHandle ...string) Edge {
	sh := ""
	if len(sourceHandle) > 0 {
		sh = sourceHandle[0]
	} else if hs := SourceHandles(source); len(hs) > 0 {
		sh = hs[0]
	}
	th := ""
	if hs := TargetHandles(target); len(hs) > 0 {
		th = hs[0]
	}
	return Edge{
		ID:           source.ID + "-" + target.ID,
		Source:       source.ID,
		SourceHandle: sh,
		Target:       target.ID,
		TargetHandle: th,
	}
}

// chain connects nodes in order through their single handles.
func chain(nodes ...Node) []Edge {
	edges := make([]Edge, 0, len(nodes))
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, edge(nodes[i-1], nodes[i]))
	}
	return edges
}

func userMessages(text string) []llm.Message {
	return []llm.Message{{Role: llm.MessageRoleUser, Content: text}}
}

// replyModel answers every call with the given text.
func replyModel(text string) ModelFunc {
	return func(_ context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error) {
		stream(Chunk{Type: EventTextDelta, Delta: text})
		return &ModelResponse{
			Text:     text,
			Messages: []llm.Message{{Role: llm.MessageRoleAssistant, Content: text}},
		}, nil
	}
}

func testExecutor(model Model) (*Executor, *fakeClock) {
	clock := newFakeClock()
	e := NewExecutor(model).WithLogger(log.Discard()).WithClock(clock)
	return e, clock
}

func testRun(events func(context.Context, Event)) *RunContext {
	return NewRunContext("run-1", nil, log.Discard(), events)
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
