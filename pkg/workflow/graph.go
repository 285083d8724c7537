package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

// Edge connects a source handle of one node to a target handle of another.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// Graph is a workflow document: the nodes and edges an editor exports plus
// optional descriptive metadata.
type Graph struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Parse decodes a graph from JSON or YAML. The document is checked against
// the embedded graph schema before it is decoded. Edges that omit a handle
// on a node with a single handle on that side get that handle filled in.
func Parse(data []byte) (*Graph, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ValidationError{
			Field:   "graph",
			Message: fmt.Sprintf("malformed document: %v", err),
		}
	}

	if err := schema.ValidateGraphDocument(doc); err != nil {
		return nil, &errors.ValidationError{
			Field:   "graph",
			Message: err.Error(),
			Hint:    "compare the document with schemas/graph.schema.json",
		}
	}

	// Round-trip through JSON so one set of decoders serves both formats.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding graph document: %w", err)
	}

	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, &errors.ValidationError{
			Field:   "graph",
			Message: err.Error(),
		}
	}
	g.Edges = normalizeHandles(g.Nodes, g.Edges)
	return &g, nil
}

// LoadFile reads and parses a graph file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return g, nil
}

// Validate validates the graph structure.
func (g *Graph) Validate() *ValidationResult {
	return Validate(g.Nodes, g.Edges)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	return findNode(g.Nodes, id)
}

func normalizeHandles(nodes []Node, edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		if e.SourceHandle == "" {
			if n, ok := findNode(nodes, e.Source); ok {
				if handles := SourceHandles(n); len(handles) == 1 {
					e.SourceHandle = handles[0]
				}
			}
		}
		if e.TargetHandle == "" {
			if n, ok := findNode(nodes, e.Target); ok {
				if handles := TargetHandles(n); len(handles) == 1 {
					e.TargetHandle = handles[0]
				}
			}
		}
		out[i] = e
	}
	return out
}

// findNode returns the first node with the given id.
func findNode(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// firstOutgoing returns the target of the first edge leaving nodeID, in
// edge order.
func firstOutgoing(edges []Edge, nodeID string) string {
	for _, e := range edges {
		if e.Source == nodeID {
			return e.Target
		}
	}
	return ""
}

// outgoingFromHandle returns the first edge leaving nodeID through handle.
func outgoingFromHandle(edges []Edge, nodeID, handle string) (Edge, bool) {
	for _, e := range edges {
		if e.Source == nodeID && e.SourceHandle == handle {
			return e, true
		}
	}
	return Edge{}, false
}
