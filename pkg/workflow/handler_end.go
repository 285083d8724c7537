package workflow

import "context"

// endHandler signals completion. It never has a next node.
type endHandler struct{}

func (endHandler) Execute(ctx context.Context, node Node, _ []Edge, run *RunContext) (NodeResult, error) {
	if err := expectType(node, NodeTypeEnd); err != nil {
		return NodeResult{}, err
	}

	run.EmitState(ctx, node, node.Data)

	return NodeResult{
		Result: ExecutionResult{Text: "end", NodeType: NodeTypeEnd},
		Finish: true,
	}, nil
}
