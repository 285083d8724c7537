package workflow

import "context"

// startHandler passes the latest user message on to the next node. Its
// result text is that message, so a branch placed directly after start
// evaluates its conditions against what the user said.
type startHandler struct{}

func (startHandler) Execute(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error) {
	if err := expectType(node, NodeTypeStart); err != nil {
		return NodeResult{}, err
	}

	result := ExecutionResult{
		Text:     run.LatestUserMessage(),
		NodeType: NodeTypeStart,
	}
	run.EmitState(ctx, node, node.Data)

	return NodeResult{Result: result, NextNodeID: firstOutgoing(edges, node.ID)}, nil
}
