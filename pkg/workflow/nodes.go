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
	"encoding/json"
	"fmt"
)

// NodeType identifies the kind of a node.
type NodeType string

const (
	NodeTypeStart  NodeType = "start"
	NodeTypeAgent  NodeType = "agent"
	NodeTypeBranch NodeType = "branch"
	NodeTypeWait   NodeType = "wait"
	NodeTypeEnd    NodeType = "end"
	NodeTypeNote   NodeType = "note"

	// legacyBranchType is the type tag older editor exports use for branch nodes.
	legacyBranchType = "if-else"
)

var validNodeTypes = map[NodeType]bool{
	NodeTypeStart:  true,
	NodeTypeAgent:  true,
	NodeTypeBranch: true,
	NodeTypeWait:   true,
	NodeTypeEnd:    true,
	NodeTypeNote:   true,
}

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	return validNodeTypes[t]
}

// Fixed handle ids. Branch nodes add one source handle per condition.
const (
	HandleMessage      = "message"
	HandlePrompt       = "prompt"
	HandleResult       = "result"
	HandleInput        = "input"
	HandleElse         = "else"
	HandleStartTimeout = "startTimeout"
	HandleEndTimeout   = "endTimeout"
)

// NodeStatus is the execution status shown on a node.
type NodeStatus string

const (
	StatusIdle       NodeStatus = "idle"
	StatusProcessing NodeStatus = "processing"
	StatusSuccess    NodeStatus = "success"
	StatusError      NodeStatus = "error"
)

// OutputKind selects between free text and schema-constrained output.
type OutputKind string

const (
	OutputText       OutputKind = "text"
	OutputStructured OutputKind = "structured"
)

// OutputShape describes what a node produces.
type OutputShape struct {
	Type   OutputKind             `json:"type"`
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// IsStructured reports whether the shape requests structured output.
func (s OutputShape) IsStructured() bool {
	return s.Type == OutputStructured
}

// NodeData is the type-specific payload of a node. Implementations are
// value types; handlers publish modified copies rather than mutating them.
type NodeData interface {
	nodeType() NodeType
}

// StartData configures the start node.
type StartData struct {
	SourceType OutputShape `json:"sourceType"`
	Status     NodeStatus  `json:"status,omitempty"`
}

// AgentData configures a model call.
type AgentData struct {
	Name                    string            `json:"name"`
	Model                   string            `json:"model"`
	SystemPrompt            string            `json:"systemPrompt"`
	SelectedTools           []string          `json:"selectedTools"`
	SourceType              OutputShape       `json:"sourceType"`
	HideResponseInChat      bool              `json:"hideResponseInChat"`
	ExcludeFromConversation bool              `json:"excludeFromConversation"`
	MaxSteps                int               `json:"maxSteps,omitempty"`
	Status                  NodeStatus        `json:"status,omitempty"`
	ValidationErrors        []ValidationIssue `json:"validationErrors,omitempty"`
}

// ConditionHandle is one named branch output guarded by a condition.
type ConditionHandle struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Condition string `json:"condition"`
}

// BranchData configures a branch node. Handles are tried in order.
type BranchData struct {
	DynamicSourceHandles []ConditionHandle `json:"dynamicSourceHandles"`
	Status               NodeStatus        `json:"status,omitempty"`
}

// WaitData configures a timed pause.
type WaitData struct {
	// TimeoutMs is the pause length in milliseconds.
	TimeoutMs int64 `json:"timeout"`

	// Countdown is the remaining time in milliseconds while waiting and
	// nil otherwise.
	Countdown *int64 `json:"countdown"`

	Status NodeStatus `json:"status,omitempty"`
}

// EndData configures an end node.
type EndData struct {
	Status NodeStatus `json:"status,omitempty"`
}

// NoteData is a free-form annotation.
type NoteData struct {
	Content string `json:"content"`
}

func (StartData) nodeType() NodeType  { return NodeTypeStart }
func (AgentData) nodeType() NodeType  { return NodeTypeAgent }
func (BranchData) nodeType() NodeType { return NodeTypeBranch }
func (WaitData) nodeType() NodeType   { return NodeTypeWait }
func (EndData) nodeType() NodeType    { return NodeTypeEnd }
func (NoteData) nodeType() NodeType   { return NodeTypeNote }

// Position is the editor canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex in a workflow graph.
type Node struct {
	ID       string
	Type     NodeType
	Position *Position
	Data     NodeData
}

// Is reports whether n has type t.
func (n Node) Is(t NodeType) bool {
	return n.Type == t
}

// DataAs returns the node payload as T. The second result is false when the
// payload has a different type.
func DataAs[T NodeData](n Node) (T, bool) {
	d, ok := n.Data.(T)
	return d, ok
}

// WithData returns a copy of n carrying data.
func (n Node) WithData(data NodeData) Node {
	n.Data = data
	return n
}

// DisplayName is the name shown in status events: the agent name for agent
// nodes, the node id otherwise.
func (n Node) DisplayName() string {
	if d, ok := DataAs[AgentData](n); ok && d.Name != "" {
		return d.Name
	}
	return n.ID
}

// TargetHandles lists the handles that accept incoming edges.
func TargetHandles(n Node) []string {
	switch n.Type {
	case NodeTypeAgent:
		return []string{HandlePrompt}
	case NodeTypeBranch, NodeTypeEnd:
		return []string{HandleInput}
	case NodeTypeWait:
		return []string{HandleStartTimeout}
	}
	return nil
}

// SourceHandles lists the handles that emit outgoing edges. Branch nodes
// expose their condition handles in order followed by else.
func SourceHandles(n Node) []string {
	switch n.Type {
	case NodeTypeStart:
		return []string{HandleMessage}
	case NodeTypeAgent:
		return []string{HandleResult}
	case NodeTypeWait:
		return []string{HandleEndTimeout}
	case NodeTypeBranch:
		d, _ := DataAs[BranchData](n)
		handles := make([]string, 0, len(d.DynamicSourceHandles)+1)
		for _, h := range d.DynamicSourceHandles {
			handles = append(handles, h.ID)
		}
		return append(handles, HandleElse)
	}
	return nil
}

type wireNode struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position *Position       `json:"position,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON decodes a node, accepting the legacy if-else type tag.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	t := NodeType(w.Type)
	if w.Type == legacyBranchType {
		t = NodeTypeBranch
	}

	data, err := decodeNodeData(t, w.Data)
	if err != nil {
		return fmt.Errorf("node %q: %w", w.ID, err)
	}

	*n = Node{ID: w.ID, Type: t, Position: w.Position, Data: data}
	return nil
}

// MarshalJSON encodes a node with its canonical type tag.
func (n Node) MarshalJSON() ([]byte, error) {
	w := struct {
		ID       string    `json:"id"`
		Type     NodeType  `json:"type"`
		Position *Position `json:"position,omitempty"`
		Data     NodeData  `json:"data,omitempty"`
	}{ID: n.ID, Type: n.Type, Position: n.Position, Data: n.Data}
	return json.Marshal(w)
}

func decodeNodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	var data NodeData
	var err error
	switch t {
	case NodeTypeStart:
		d := StartData{SourceType: OutputShape{Type: OutputText}}
		err = unmarshalData(raw, &d)
		data = d
	case NodeTypeAgent:
		d := AgentData{SourceType: OutputShape{Type: OutputText}}
		err = unmarshalData(raw, &d)
		data = d
	case NodeTypeBranch:
		var d BranchData
		err = unmarshalData(raw, &d)
		data = d
	case NodeTypeWait:
		var d WaitData
		err = unmarshalData(raw, &d)
		data = d
	case NodeTypeEnd:
		var d EndData
		err = unmarshalData(raw, &d)
		data = d
	case NodeTypeNote:
		var d NoteData
		err = unmarshalData(raw, &d)
		data = d
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmarshalData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
