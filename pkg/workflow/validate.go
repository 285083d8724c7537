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
	"fmt"
	"strings"

	"github.com/tombee/chatflow/pkg/workflow/expression"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

// IssueKind classifies a validation error or warning.
type IssueKind string

// Issue kinds. The last three are warnings.
const (
	IssueDuplicateID       IssueKind = "duplicate-id"
	IssueInvalidEdge       IssueKind = "invalid-edge"
	IssueNoStartNode       IssueKind = "no-start-node"
	IssueNoEndNode         IssueKind = "no-end-node"
	IssueMultipleSources   IssueKind = "multiple-sources-for-target-handle"
	IssueMultipleOutgoing  IssueKind = "multiple-outgoing-from-source-handle"
	IssueCycle             IssueKind = "cycle"
	IssueUnreachableNode   IssueKind = "unreachable-node"
	IssueInvalidNodeConfig IssueKind = "invalid-node-config"
	IssueInvalidCondition  IssueKind = "invalid-condition"
	IssueMissingConnection IssueKind = "missing-required-connection"
	IssueNoteConnected     IssueKind = "note-has-connections"
	IssueEmptyCondition    IssueKind = "empty-condition"
	IssueUnconnectedHandle IssueKind = "unconnected-handle"
)

// Agent step budget bounds. Zero maxSteps selects the default.
const (
	defaultAgentMaxSteps = 5
	maxAgentSteps        = 50
)

// NodeRef identifies a node, and optionally one of its handles.
type NodeRef struct {
	ID       string `json:"id"`
	HandleID string `json:"handleId,omitempty"`
}

// ConditionRef locates a branch condition that failed to compile.
type ConditionRef struct {
	NodeID    string `json:"nodeId"`
	HandleID  string `json:"handleId"`
	Condition string `json:"condition"`
	Error     string `json:"error"`
}

// ValidationIssue is one validation error or warning. Which payload fields
// are set depends on Type.
type ValidationIssue struct {
	Type    IssueKind `json:"type"`
	Message string    `json:"message"`

	Edges     []Edge        `json:"edges,omitempty"`
	Node      *NodeRef      `json:"node,omitempty"`
	Nodes     []NodeRef     `json:"nodes,omitempty"`
	Condition *ConditionRef `json:"condition,omitempty"`
	Count     *int          `json:"count,omitempty"`
}

// Mentions reports whether the issue concerns the given node.
func (i ValidationIssue) Mentions(nodeID string) bool {
	if i.Node != nil && i.Node.ID == nodeID {
		return true
	}
	if i.Condition != nil && i.Condition.NodeID == nodeID {
		return true
	}
	for _, n := range i.Nodes {
		if n.ID == nodeID {
			return true
		}
	}
	for _, e := range i.Edges {
		if e.Source == nodeID || e.Target == nodeID {
			return true
		}
	}
	return false
}

// ValidationResult is the outcome of validating a graph.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// ErrorsForNode returns the errors that concern nodeID, in report order.
func (r *ValidationResult) ErrorsForNode(nodeID string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Errors {
		if issue.Mentions(nodeID) {
			out = append(out, issue)
		}
	}
	return out
}

// Annotate returns a copy of nodes in which every agent node carries the
// errors that concern it.
func (r *ValidationResult) Annotate(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if d, ok := DataAs[AgentData](n); ok {
			d.ValidationErrors = r.ErrorsForNode(n.ID)
			out[i] = n.WithData(d)
		}
	}
	return out
}

// conditions compiles branch conditions during validation.
var conditions = expression.New()

// Validate checks a graph for structural problems. It never mutates its
// inputs and always runs every check, so the same graph yields the same
// result. Errors are reported in check order: identity, start count, end
// presence, fan-in, fan-out, cycles, reachability, then per-node checks.
func Validate(nodes []Node, edges []Edge) *ValidationResult {
	v := &validation{
		nodes: nodes,
		byID:  make(map[string]Node, len(nodes)),
	}
	v.checkIdentity(edges)
	v.checkStartCount()
	v.checkEndPresent()
	v.checkFanIn()
	v.checkFanOut()
	v.checkCycles()
	v.checkReachability()
	for _, n := range v.unique {
		v.checkNode(n)
	}
	v.collectWarnings()

	return &ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   nonNil(v.errors),
		Warnings: nonNil(v.warnings),
	}
}

func nonNil(issues []ValidationIssue) []ValidationIssue {
	if issues == nil {
		return []ValidationIssue{}
	}
	return issues
}

type validation struct {
	nodes  []Node
	unique []Node
	byID   map[string]Node

	// edges holds only edges whose endpoints exist.
	edges []Edge

	errors   []ValidationIssue
	warnings []ValidationIssue
}

func (v *validation) fail(issue ValidationIssue) {
	v.errors = append(v.errors, issue)
}

func (v *validation) warn(issue ValidationIssue) {
	v.warnings = append(v.warnings, issue)
}

func (v *validation) checkIdentity(edges []Edge) {
	for _, n := range v.nodes {
		if _, seen := v.byID[n.ID]; seen {
			v.fail(ValidationIssue{
				Type:    IssueDuplicateID,
				Message: fmt.Sprintf("Node id %q is used more than once", n.ID),
				Node:    &NodeRef{ID: n.ID},
			})
			continue
		}
		v.byID[n.ID] = n
		v.unique = append(v.unique, n)
	}

	edgeIDs := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				v.fail(ValidationIssue{
					Type:    IssueDuplicateID,
					Message: fmt.Sprintf("Edge id %q is used more than once", e.ID),
					Edges:   []Edge{e},
				})
			}
			edgeIDs[e.ID] = true
		}

		_, hasSource := v.byID[e.Source]
		_, hasTarget := v.byID[e.Target]
		if !hasSource || !hasTarget {
			missing := e.Source
			if hasSource {
				missing = e.Target
			}
			v.fail(ValidationIssue{
				Type:    IssueInvalidEdge,
				Message: fmt.Sprintf("Edge %s references missing node %q", edgeLabel(e), missing),
				Edges:   []Edge{e},
			})
			continue
		}
		v.edges = append(v.edges, e)
	}
}

func (v *validation) countType(t NodeType) int {
	count := 0
	for _, n := range v.unique {
		if n.Is(t) {
			count++
		}
	}
	return count
}

func (v *validation) checkStartCount() {
	count := v.countType(NodeTypeStart)
	if count == 1 {
		return
	}
	msg := "Workflow must have a start node"
	if count > 1 {
		msg = fmt.Sprintf("Workflow must have exactly one start node, found %d", count)
	}
	v.fail(ValidationIssue{Type: IssueNoStartNode, Message: msg, Count: &count})
}

func (v *validation) checkEndPresent() {
	if v.countType(NodeTypeEnd) > 0 {
		return
	}
	v.fail(ValidationIssue{Type: IssueNoEndNode, Message: "Workflow must have at least one end node"})
}

// groupEdges groups edges by key, keeping groups in first-appearance order.
func groupEdges(edges []Edge, key func(Edge) string) [][]Edge {
	index := make(map[string]int)
	var groups [][]Edge
	for _, e := range edges {
		k := key(e)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

func (v *validation) checkFanIn() {
	groups := groupEdges(v.edges, func(e Edge) string { return e.Target + "\x00" + e.TargetHandle })
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		v.fail(ValidationIssue{
			Type:    IssueMultipleSources,
			Message: fmt.Sprintf("Handle %q of node %q has %d incoming connections; only one is allowed", g[0].TargetHandle, g[0].Target, len(g)),
			Edges:   g,
		})
	}
}

func (v *validation) checkFanOut() {
	groups := groupEdges(v.edges, func(e Edge) string { return e.Source + "\x00" + e.SourceHandle })
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		v.fail(ValidationIssue{
			Type:    IssueMultipleOutgoing,
			Message: fmt.Sprintf("Handle %q of node %q has %d outgoing connections; only one is allowed", g[0].SourceHandle, g[0].Source, len(g)),
			Edges:   g,
		})
	}
}

// traversable returns the adjacency list over edges between non-note nodes,
// keeping edge order.
func (v *validation) traversable() map[string][]Edge {
	adj := make(map[string][]Edge)
	for _, e := range v.edges {
		if v.byID[e.Source].Is(NodeTypeNote) || v.byID[e.Target].Is(NodeTypeNote) {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e)
	}
	return adj
}

const (
	unvisited = iota
	onStack
	done
)

func (v *validation) checkCycles() {
	adj := v.traversable()
	state := make(map[string]int, len(v.unique))
	var path []Edge

	var visit func(id string)
	visit = func(id string) {
		state[id] = onStack
		for _, e := range adj[id] {
			switch state[e.Target] {
			case onStack:
				v.reportCycle(path, e)
			case unvisited:
				path = append(path, e)
				visit(e.Target)
				path = path[:len(path)-1]
			}
		}
		state[id] = done
	}

	for _, n := range v.unique {
		if n.Is(NodeTypeNote) || state[n.ID] != unvisited {
			continue
		}
		visit(n.ID)
	}
}

// reportCycle records the cycle closed by back edge e: the suffix of the
// current DFS path starting at e's target, followed by e.
func (v *validation) reportCycle(path []Edge, back Edge) {
	start := len(path)
	for i, e := range path {
		if e.Source == back.Target {
			start = i
			break
		}
	}
	cycle := make([]Edge, 0, len(path)-start+1)
	cycle = append(cycle, path[start:]...)
	cycle = append(cycle, back)

	ids := make([]string, 0, len(cycle)+1)
	for _, e := range cycle {
		ids = append(ids, e.Source)
	}
	ids = append(ids, back.Target)

	v.fail(ValidationIssue{
		Type:    IssueCycle,
		Message: fmt.Sprintf("Workflow contains a cycle: %s", strings.Join(ids, " -> ")),
		Edges:   cycle,
	})
}

func (v *validation) checkReachability() {
	adj := v.traversable()
	visited := make(map[string]bool, len(v.unique))
	var queue []string
	for _, n := range v.unique {
		if n.Is(NodeTypeStart) {
			visited[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	if len(queue) == 0 {
		return
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range adj[id] {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}

	var unreachable []NodeRef
	var ids []string
	for _, n := range v.unique {
		if n.Is(NodeTypeStart) || n.Is(NodeTypeNote) || visited[n.ID] {
			continue
		}
		unreachable = append(unreachable, NodeRef{ID: n.ID})
		ids = append(ids, n.ID)
	}
	if len(unreachable) == 0 {
		return
	}
	v.fail(ValidationIssue{
		Type:    IssueUnreachableNode,
		Message: fmt.Sprintf("Nodes not reachable from the start node: %s", strings.Join(ids, ", ")),
		Nodes:   unreachable,
	})
}

func (v *validation) checkNode(n Node) {
	switch n.Type {
	case NodeTypeStart:
		v.requireSource(n, HandleMessage)
	case NodeTypeAgent:
		v.checkAgent(n)
		v.requireTarget(n, HandlePrompt)
		v.requireSource(n, HandleResult)
	case NodeTypeBranch:
		v.checkBranch(n)
		v.requireTarget(n, HandleInput)
		v.requireAnySource(n)
	case NodeTypeWait:
		if d, _ := DataAs[WaitData](n); d.TimeoutMs < 0 {
			v.invalidConfig(n, "Wait node %q has a negative timeout", n.ID)
		}
		v.requireTarget(n, HandleStartTimeout)
		v.requireSource(n, HandleEndTimeout)
	case NodeTypeEnd:
		v.requireTarget(n, HandleInput)
	}
}

func (v *validation) invalidConfig(n Node, format string, args ...interface{}) {
	v.fail(ValidationIssue{
		Type:    IssueInvalidNodeConfig,
		Message: fmt.Sprintf(format, args...),
		Node:    &NodeRef{ID: n.ID},
	})
}

func (v *validation) checkAgent(n Node) {
	d, _ := DataAs[AgentData](n)
	label := n.DisplayName()

	if d.SourceType.IsStructured() {
		if d.SourceType.Schema == nil {
			v.invalidConfig(n, "Agent %q requests structured output but has no schema", label)
		} else if err := schema.Check(d.SourceType.Schema); err != nil {
			v.invalidConfig(n, "Agent %q has an unusable output schema: %v", label, err)
		}
	}
	if d.MaxSteps != 0 && (d.MaxSteps < 1 || d.MaxSteps > maxAgentSteps) {
		v.invalidConfig(n, "Agent %q maxSteps must be between 1 and %d, got %d", label, maxAgentSteps, d.MaxSteps)
	}
	if strings.TrimSpace(d.Model) == "" {
		v.invalidConfig(n, "Agent %q has no model", label)
	}
}

func (v *validation) checkBranch(n Node) {
	d, _ := DataAs[BranchData](n)
	seen := make(map[string]bool, len(d.DynamicSourceHandles))
	for _, h := range d.DynamicSourceHandles {
		switch {
		case h.ID == "":
			v.invalidConfig(n, "Branch %q has a condition handle without an id", n.ID)
		case h.ID == HandleElse:
			v.invalidConfig(n, "Branch %q uses the reserved handle id %q", n.ID, HandleElse)
		case seen[h.ID]:
			v.invalidConfig(n, "Branch %q has duplicate handle id %q", n.ID, h.ID)
		}
		seen[h.ID] = true

		if strings.TrimSpace(h.Condition) == "" {
			continue
		}
		if err := conditions.Compile(h.Condition); err != nil {
			v.fail(ValidationIssue{
				Type:    IssueInvalidCondition,
				Message: fmt.Sprintf("Invalid condition on handle %q of branch %q: %v", h.ID, n.ID, err),
				Condition: &ConditionRef{
					NodeID:    n.ID,
					HandleID:  h.ID,
					Condition: h.Condition,
					Error:     err.Error(),
				},
			})
		}
	}
}

func (v *validation) hasTarget(n Node, handle string) bool {
	for _, e := range v.edges {
		if e.Target == n.ID && e.TargetHandle == handle {
			return true
		}
	}
	return false
}

func (v *validation) hasSource(n Node, handle string) bool {
	for _, e := range v.edges {
		if e.Source == n.ID && e.SourceHandle == handle {
			return true
		}
	}
	return false
}

func (v *validation) missing(n Node, handle string) {
	v.fail(ValidationIssue{
		Type:    IssueMissingConnection,
		Message: fmt.Sprintf("Node %q requires a connection on handle %q", n.DisplayName(), handle),
		Node:    &NodeRef{ID: n.ID, HandleID: handle},
	})
}

func (v *validation) requireTarget(n Node, handle string) {
	if !v.hasTarget(n, handle) {
		v.missing(n, handle)
	}
}

func (v *validation) requireSource(n Node, handle string) {
	if !v.hasSource(n, handle) {
		v.missing(n, handle)
	}
}

func (v *validation) requireAnySource(n Node) {
	for _, h := range SourceHandles(n) {
		if v.hasSource(n, h) {
			return
		}
	}
	v.missing(n, HandleElse)
}

func (v *validation) collectWarnings() {
	for _, n := range v.unique {
		switch n.Type {
		case NodeTypeNote:
			for _, e := range v.edges {
				if e.Source == n.ID || e.Target == n.ID {
					v.warn(ValidationIssue{
						Type:    IssueNoteConnected,
						Message: fmt.Sprintf("Note %q has connections; notes are never executed", n.ID),
						Node:    &NodeRef{ID: n.ID},
					})
					break
				}
			}
		case NodeTypeBranch:
			d, _ := DataAs[BranchData](n)
			for _, h := range d.DynamicSourceHandles {
				if strings.TrimSpace(h.Condition) == "" {
					v.warn(ValidationIssue{
						Type:    IssueEmptyCondition,
						Message: fmt.Sprintf("Handle %q of branch %q has no condition and will never be taken", h.ID, n.ID),
						Node:    &NodeRef{ID: n.ID, HandleID: h.ID},
					})
				}
				if !v.hasSource(n, h.ID) {
					v.warn(ValidationIssue{
						Type:    IssueUnconnectedHandle,
						Message: fmt.Sprintf("Handle %q of branch %q is not connected", h.ID, n.ID),
						Node:    &NodeRef{ID: n.ID, HandleID: h.ID},
					})
				}
			}
		}
	}
}

func edgeLabel(e Edge) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s->%s", e.Source, e.Target)
}
