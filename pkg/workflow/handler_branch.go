package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tombee/chatflow/internal/log"
	"github.com/tombee/chatflow/pkg/workflow/expression"
)

// branchHandler routes on conditions evaluated against the previous node's
// result. The first handle whose condition holds and which has an edge
// wins; otherwise the else edge is followed.
type branchHandler struct {
	eval *expression.Evaluator
}

func (h *branchHandler) Execute(ctx context.Context, node Node, edges []Edge, run *RunContext) (NodeResult, error) {
	if err := expectType(node, NodeTypeBranch); err != nil {
		return NodeResult{}, err
	}
	data, _ := DataAs[BranchData](node)
	logger := log.WithNodeContext(run.Logger, node.ID, string(node.Type))

	var next string
	if prev, ok := run.Previous(); ok {
		input := expression.Input(prev.Text, prev.Structured)
		next = h.route(node, data, edges, input, logger)
	} else {
		logger.Warn("branch has no input from a previous node")
	}

	run.EmitState(ctx, node, data)

	return NodeResult{
		Result:     ExecutionResult{Text: "branch", NodeType: NodeTypeBranch},
		NextNodeID: next,
	}, nil
}

func (h *branchHandler) route(node Node, data BranchData, edges []Edge, input any, logger *slog.Logger) string {
	for _, handle := range data.DynamicSourceHandles {
		if strings.TrimSpace(handle.Condition) == "" {
			continue
		}

		matched, err := h.eval.Evaluate(handle.Condition, input)
		if err != nil {
			logger.Warn("condition evaluation failed",
				slog.String(log.HandleIDKey, handle.ID),
				slog.String("condition", handle.Condition),
				log.Error(err))
			continue
		}
		if !matched {
			continue
		}

		if e, ok := outgoingFromHandle(edges, node.ID, handle.ID); ok {
			logger.Debug("branch taken", slog.String(log.HandleIDKey, handle.ID))
			return e.Target
		}
	}

	if e, ok := outgoingFromHandle(edges, node.ID, HandleElse); ok {
		logger.Debug("branch taken", slog.String(log.HandleIDKey, HandleElse))
		return e.Target
	}
	return ""
}
