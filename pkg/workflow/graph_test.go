package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chatflow/pkg/errors"
)

const yamlGraph = `
name: greeter
description: says hello after a pause
nodes:
  - id: start
    type: start
    position: {x: 0, y: 0}
  - id: pause
    type: wait
    data:
      timeout: 250
  - id: reply
    type: agent
    data:
      name: Greeter
      model: llama3.2
      systemPrompt: Say hello.
  - id: end
    type: end
edges:
  - source: start
    target: pause
  - source: pause
    target: reply
  - source: reply
    target: end
`

func TestParseYAML(t *testing.T) {
	g, err := Parse([]byte(yamlGraph))
	require.NoError(t, err)

	assert.Equal(t, "greeter", g.Name)
	require.Len(t, g.Nodes, 4)
	require.Len(t, g.Edges, 3)

	pause, ok := g.Node("pause")
	require.True(t, ok)
	data, ok := DataAs[WaitData](pause)
	require.True(t, ok)
	assert.Equal(t, int64(250), data.TimeoutMs)

	start, _ := g.Node("start")
	require.NotNil(t, start.Position)

	// Single-handle endpoints get their handles filled in.
	assert.Equal(t, Edge{Source: "start", SourceHandle: HandleMessage, Target: "pause", TargetHandle: HandleStartTimeout}, g.Edges[0])
	assert.Equal(t, Edge{Source: "pause", SourceHandle: HandleEndTimeout, Target: "reply", TargetHandle: HandlePrompt}, g.Edges[1])
	assert.Equal(t, Edge{Source: "reply", SourceHandle: HandleResult, Target: "end", TargetHandle: HandleInput}, g.Edges[2])

	assert.True(t, g.Validate().Valid)
}

func TestParseJSON(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": "s", "type": "start"},
			{"id": "b", "type": "if-else", "data": {"dynamicSourceHandles": [{"id": "yes", "label": "Yes", "condition": "input == 'yes'"}]}},
			{"id": "e1", "type": "end"},
			{"id": "e2", "type": "end"}
		],
		"edges": [
			{"id": "x1", "source": "s", "sourceHandle": "message", "target": "b", "targetHandle": "input"},
			{"id": "x2", "source": "b", "sourceHandle": "yes", "target": "e1", "targetHandle": "input"},
			{"id": "x3", "source": "b", "sourceHandle": "else", "target": "e2"}
		]
	}`

	g, err := Parse([]byte(doc))
	require.NoError(t, err)

	b, ok := g.Node("b")
	require.True(t, ok)
	assert.True(t, b.Is(NodeTypeBranch))
	assert.Equal(t, HandleInput, g.Edges[2].TargetHandle)

	result := g.Validate()
	assert.True(t, result.Valid, "%+v", result.Errors)
}

func TestParseBranchHandleNotFilled(t *testing.T) {
	doc := `
nodes:
  - {id: s, type: start}
  - {id: b, type: branch, data: {dynamicSourceHandles: [{id: a, label: A, condition: "true"}]}}
  - {id: e, type: end}
edges:
  - {source: s, target: b}
  - {source: b, target: e}
`
	g, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, g.Edges[1].SourceHandle, "branch has more than one source handle")
	assert.Equal(t, HandleInput, g.Edges[1].TargetHandle)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"malformed", "nodes: [", "malformed document"},
		{"missing edges", "nodes: []", "edges"},
		{"unknown type", "nodes: [{id: x, type: loop}]\nedges: []", "type"},
		{"empty id", "nodes: [{id: '', type: start}]\nedges: []", "id"},
		{"edge without target", "nodes: []\nedges: [{source: a}]", "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), "got %T", err)
			assert.Equal(t, "graph", verr.Field)
			assert.Contains(t, verr.Message, tt.wantMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlGraph), 0o600))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading graph file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes: []"), 0o600))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestFirstOutgoingAndHandleLookup(t *testing.T) {
	edges := []Edge{
		{Source: "b", SourceHandle: "one", Target: "x"},
		{Source: "b", SourceHandle: HandleElse, Target: "y"},
		{Source: "c", SourceHandle: HandleResult, Target: "z"},
	}

	assert.Equal(t, "x", firstOutgoing(edges, "b"))
	assert.Equal(t, "", firstOutgoing(edges, "z"))

	e, ok := outgoingFromHandle(edges, "b", HandleElse)
	require.True(t, ok)
	assert.Equal(t, "y", e.Target)

	_, ok = outgoingFromHandle(edges, "b", "two")
	assert.False(t, ok)
}
