package workflow

import (
	"context"
	"fmt"
)

// NodeHandler executes one node type. Handlers resolve the next node from
// the edge list and publish a snapshot of the node's data as a state event
// before returning.
type NodeHandler interface {
	Execute(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error)
}

// expectType rejects nodes of the wrong type.
func expectType(n Node, t NodeType) error {
	if n.Is(t) {
		return nil
	}
	return nodeError(n, fmt.Errorf("%w: expected %s", ErrWrongNodeType, t))
}
