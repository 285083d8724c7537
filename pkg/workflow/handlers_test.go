package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow/expression"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

func recordingRun(messages []llm.Message) (*RunContext, *Recorder) {
	rec := NewRecorder()
	run := testRun(func(ctx context.Context, ev Event) { _ = rec.Emit(ctx, ev) })
	run.Messages = messages
	return run, rec
}

func TestStartHandler(t *testing.T) {
	s, e := startNode("s"), endNode("e")
	run, rec := recordingRun([]llm.Message{
		{Role: llm.MessageRoleUser, Content: "first"},
		{Role: llm.MessageRoleAssistant, Content: "reply"},
		{Role: llm.MessageRoleUser, Content: "latest"},
	})

	res, err := startHandler{}.Execute(context.Background(), s, chain(s, e), run)
	require.NoError(t, err)

	assert.Equal(t, "latest", res.Result.Text)
	assert.Equal(t, NodeTypeStart, res.Result.NodeType)
	assert.Equal(t, "e", res.NextNodeID)
	assert.Equal(t, []EventType{EventNodeState}, eventTypes(rec.Events()))
	assert.Equal(t, "run-1", rec.Events()[0].RunID)

	t.Run("no user message", func(t *testing.T) {
		run, _ := recordingRun(nil)
		res, err := startHandler{}.Execute(context.Background(), s, nil, run)
		require.NoError(t, err)
		assert.Equal(t, "", res.Result.Text)
		assert.Equal(t, "", res.NextNodeID)
	})
}

func TestHandlersRejectWrongType(t *testing.T) {
	run, _ := recordingRun(nil)
	wrong := endNode("x")

	handlers := map[string]NodeHandler{
		"start":  startHandler{},
		"agent":  &agentHandler{model: replyModel("hi")},
		"branch": &branchHandler{eval: expression.New()},
		"wait":   &waitHandler{clock: newFakeClock(), tick: DefaultTickInterval},
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), wrong, nil, run)
			assert.ErrorIs(t, err, ErrWrongNodeType)
		})
	}

	_, err := endHandler{}.Execute(context.Background(), startNode("s"), nil, run)
	assert.ErrorIs(t, err, ErrWrongNodeType)
}

func TestEndHandler(t *testing.T) {
	run, rec := recordingRun(nil)
	res, err := endHandler{}.Execute(context.Background(), endNode("e"), nil, run)
	require.NoError(t, err)

	assert.Equal(t, "end", res.Result.Text)
	assert.Empty(t, res.NextNodeID)
	assert.True(t, res.Finish)
	assert.Equal(t, []EventType{EventNodeState}, eventTypes(rec.Events()))
}

func TestBranchHandler(t *testing.T) {
	h := &branchHandler{eval: expression.New()}
	b := branchNode("b",
		cond("blank", ""),
		cond("broken", "input.language.name == 'x'"),
		cond("python", "input.language == 'python'"),
		cond("unwired", "input.language == 'go'"),
		cond("go", "input.language == 'go'"),
	)
	edges := []Edge{
		{Source: "b", SourceHandle: "blank", Target: "blank-target"},
		{Source: "b", SourceHandle: "broken", Target: "broken-target"},
		{Source: "b", SourceHandle: "python", Target: "python-target"},
		{Source: "b", SourceHandle: "go", Target: "go-target"},
		{Source: "b", SourceHandle: HandleElse, Target: "else-target"},
	}

	route := func(prev *ExecutionResult) (NodeResult, []Event) {
		run, rec := recordingRun(nil)
		if prev != nil {
			run.Memory["prev"] = *prev
			run.PreviousNodeID = "prev"
		}
		res, err := h.Execute(context.Background(), b, edges, run)
		require.NoError(t, err)
		return res, rec.Events()
	}

	t.Run("first matching handle with an edge wins", func(t *testing.T) {
		res, events := route(&ExecutionResult{Structured: map[string]interface{}{"language": "go"}})
		assert.Equal(t, "go-target", res.NextNodeID)
		assert.Equal(t, "branch", res.Result.Text)
		assert.Equal(t, []EventType{EventNodeState}, eventTypes(events))
	})

	t.Run("declared order decides between matches", func(t *testing.T) {
		ordered := branchNode("b", cond("first", "true"), cond("second", "true"))
		run, _ := recordingRun(nil)
		run.Memory["prev"] = ExecutionResult{Text: "anything"}
		run.PreviousNodeID = "prev"

		res, err := h.Execute(context.Background(), ordered, []Edge{
			{Source: "b", SourceHandle: "second", Target: "second-target"},
			{Source: "b", SourceHandle: "first", Target: "first-target"},
		}, run)
		require.NoError(t, err)
		assert.Equal(t, "first-target", res.NextNodeID)
	})

	t.Run("falls back to else", func(t *testing.T) {
		res, _ := route(&ExecutionResult{Structured: map[string]interface{}{"language": "rust"}})
		assert.Equal(t, "else-target", res.NextNodeID)
	})

	t.Run("text input when nothing structured", func(t *testing.T) {
		textBranch := branchNode("b", cond("greeting", "includes(input, 'hello')"))
		run, _ := recordingRun(nil)
		run.Memory["prev"] = ExecutionResult{Text: "well hello there"}
		run.PreviousNodeID = "prev"

		res, err := h.Execute(context.Background(), textBranch, []Edge{
			{Source: "b", SourceHandle: "greeting", Target: "greeted"},
			{Source: "b", SourceHandle: HandleElse, Target: "other"},
		}, run)
		require.NoError(t, err)
		assert.Equal(t, "greeted", res.NextNodeID)
	})

	t.Run("no previous result stops the run", func(t *testing.T) {
		res, events := route(nil)
		assert.Empty(t, res.NextNodeID)
		assert.Len(t, events, 1)
	})

	t.Run("no else edge and no match", func(t *testing.T) {
		run, _ := recordingRun(nil)
		run.Memory["prev"] = ExecutionResult{Text: "x"}
		run.PreviousNodeID = "prev"
		res, err := h.Execute(context.Background(), branchNode("b", cond("never", "false")), nil, run)
		require.NoError(t, err)
		assert.Empty(t, res.NextNodeID)
	})
}

func countdowns(events []Event) []*int64 {
	var out []*int64
	for _, ev := range events {
		if ev.Type != EventNodeState {
			continue
		}
		d, _ := ev.Data.(WaitData)
		out = append(out, d.Countdown)
	}
	return out
}

func ptr(v int64) *int64 { return &v }

func waitStatuses(events []Event) []NodeStatus {
	var out []NodeStatus
	for _, ev := range events {
		if d, ok := ev.Data.(WaitData); ok && ev.Type == EventNodeState {
			out = append(out, d.Status)
		}
	}
	return out
}

func TestWaitHandler(t *testing.T) {
	w, e := waitNode("w", 250), endNode("e")

	t.Run("ticks down to zero", func(t *testing.T) {
		clock := newFakeClock()
		h := &waitHandler{clock: clock, tick: 100 * time.Millisecond}
		run, rec := recordingRun(nil)

		res, err := h.Execute(context.Background(), w, chain(w, e), run)
		require.NoError(t, err)

		assert.Equal(t, "e", res.NextNodeID)
		assert.Equal(t, "wait", res.Result.Text)
		assert.Equal(t, []*int64{ptr(250), ptr(150), ptr(50), ptr(0), nil}, countdowns(rec.Events()))
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}, clock.waits)

		statuses := waitStatuses(rec.Events())
		require.Len(t, statuses, 5)
		for _, st := range statuses[:4] {
			assert.Equal(t, StatusProcessing, st)
		}
		assert.Equal(t, StatusSuccess, statuses[4], "the final state event is no longer processing")
	})

	t.Run("zero timeout emits initial and final state only", func(t *testing.T) {
		clock := newFakeClock()
		h := &waitHandler{clock: clock, tick: DefaultTickInterval}
		run, rec := recordingRun(nil)

		_, err := h.Execute(context.Background(), waitNode("w", 0), nil, run)
		require.NoError(t, err)
		assert.Equal(t, []*int64{ptr(0), nil}, countdowns(rec.Events()))
		assert.Empty(t, clock.waits)
	})

	t.Run("negative timeout is treated as zero", func(t *testing.T) {
		h := &waitHandler{clock: newFakeClock(), tick: DefaultTickInterval}
		run, rec := recordingRun(nil)

		_, err := h.Execute(context.Background(), waitNode("w", -20), nil, run)
		require.NoError(t, err)
		assert.Equal(t, []*int64{ptr(0), nil}, countdowns(rec.Events()))
	})

	t.Run("cancellation clears the countdown", func(t *testing.T) {
		h := &waitHandler{clock: blockingClock{}, tick: DefaultTickInterval}
		run, rec := recordingRun(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.Execute(ctx, w, chain(w, e), run)
		assert.ErrorIs(t, err, context.Canceled)

		got := countdowns(rec.Events())
		require.Len(t, got, 2)
		assert.Equal(t, ptr(250), got[0])
		assert.Nil(t, got[1])
		assert.Equal(t, []NodeStatus{StatusProcessing, StatusError}, waitStatuses(rec.Events()))
	})
}

func TestAgentHandler(t *testing.T) {
	s, e := startNode("s"), endNode("e")

	newAgent := func(mutate func(*AgentData)) Node {
		a := agentNode("a", "Helper")
		d, _ := DataAs[AgentData](a)
		d.SystemPrompt = "be brief"
		d.SelectedTools = []string{"wikipedia-query"}
		if mutate != nil {
			mutate(&d)
		}
		return a.WithData(d)
	}
	handler := func(m Model) *agentHandler {
		return &agentHandler{model: m, defaultSteps: defaultAgentMaxSteps, validator: schema.NewValidator()}
	}

	t.Run("calls the model and forwards chunks", func(t *testing.T) {
		a := newAgent(nil)
		var got ModelRequest
		model := ModelFunc(func(ctx context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error) {
			got = req
			return replyModel("hello there")(ctx, req, stream)
		})
		run, rec := recordingRun(userMessages("hi"))

		res, err := handler(model).Execute(context.Background(), a, chain(s, a, e), run)
		require.NoError(t, err)

		assert.Equal(t, "llama3.2", got.Model)
		assert.Equal(t, "be brief", got.SystemPrompt)
		assert.Equal(t, []string{"wikipedia-query"}, got.Tools)
		assert.Equal(t, defaultAgentMaxSteps, got.MaxSteps)
		assert.Nil(t, got.OutputSchema)
		assert.Equal(t, userMessages("hi"), got.Messages)

		assert.Equal(t, "hello there", res.Result.Text)
		assert.Nil(t, res.Result.Structured)
		assert.Equal(t, "e", res.NextNodeID)
		assert.Len(t, run.Messages, 2)
		assert.Equal(t, []EventType{EventTextDelta, EventNodeState}, eventTypes(rec.Events()))
		assert.Equal(t, "hello there", rec.Events()[0].Delta)
	})

	t.Run("hidden responses are not forwarded", func(t *testing.T) {
		a := newAgent(func(d *AgentData) { d.HideResponseInChat = true })
		run, rec := recordingRun(userMessages("hi"))

		_, err := handler(replyModel("secret")).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Equal(t, []EventType{EventNodeState}, eventTypes(rec.Events()))
	})

	t.Run("excluded responses leave the conversation alone", func(t *testing.T) {
		a := newAgent(func(d *AgentData) { d.ExcludeFromConversation = true; d.MaxSteps = 3 })
		var steps int
		model := ModelFunc(func(ctx context.Context, req ModelRequest, stream StreamFunc) (*ModelResponse, error) {
			steps = req.MaxSteps
			return replyModel("internal")(ctx, req, stream)
		})
		run, _ := recordingRun(userMessages("hi"))

		res, err := handler(model).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Equal(t, 3, steps)
		assert.Len(t, run.Messages, 1)
		assert.Len(t, res.Result.Messages, 1)
	})

	structured := func(d *AgentData) {
		d.SourceType = OutputShape{Type: OutputStructured, Schema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"language"},
			"properties": map[string]interface{}{
				"language": map[string]interface{}{"type": "string", "enum": []interface{}{"go", "python"}},
			},
		}}
	}

	t.Run("structured output is parsed", func(t *testing.T) {
		a := newAgent(structured)
		run, _ := recordingRun(userMessages("package main"))

		res, err := handler(replyModel("```json\n{\"language\": \"go\"}\n```")).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"language": "go"}, res.Result.Structured)
	})

	t.Run("unparseable structured output falls back to text", func(t *testing.T) {
		a := newAgent(structured)
		run, _ := recordingRun(userMessages("package main"))

		res, err := handler(replyModel("I think it is Go.")).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Nil(t, res.Result.Structured)
		assert.Equal(t, "I think it is Go.", res.Result.Text)
	})

	t.Run("truncated structured output is not repaired", func(t *testing.T) {
		a := newAgent(structured)
		run, _ := recordingRun(userMessages("package main"))

		res, err := handler(replyModel(`{"language": "go"`)).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Nil(t, res.Result.Structured)
		assert.Equal(t, `{"language": "go"`, res.Result.Text)
	})

	t.Run("json inside prose is not extracted", func(t *testing.T) {
		a := newAgent(structured)
		run, _ := recordingRun(userMessages("package main"))

		res, err := handler(replyModel(`Sure: {"language": "go"}`)).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Nil(t, res.Result.Structured)
	})

	t.Run("schema mismatch falls back to text", func(t *testing.T) {
		a := newAgent(structured)
		run, _ := recordingRun(userMessages("package main"))

		res, err := handler(replyModel(`{"language": "cobol"}`)).Execute(context.Background(), a, nil, run)
		require.NoError(t, err)
		assert.Nil(t, res.Result.Structured)
	})

	t.Run("structured without schema fails", func(t *testing.T) {
		a := newAgent(func(d *AgentData) { d.SourceType = OutputShape{Type: OutputStructured} })
		run, _ := recordingRun(nil)
		_, err := handler(replyModel("{}")).Execute(context.Background(), a, nil, run)
		assert.Error(t, err)
	})

	t.Run("no model", func(t *testing.T) {
		run, _ := recordingRun(nil)
		_, err := handler(nil).Execute(context.Background(), newAgent(nil), nil, run)
		assert.ErrorIs(t, err, ErrNoModel)
	})

	t.Run("model errors propagate", func(t *testing.T) {
		boom := errors.New("provider unavailable")
		model := ModelFunc(func(context.Context, ModelRequest, StreamFunc) (*ModelResponse, error) {
			return nil, boom
		})
		run, rec := recordingRun(nil)
		_, err := handler(model).Execute(context.Background(), newAgent(nil), nil, run)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, rec.Events())
	})
}
