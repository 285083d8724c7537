package workflow

import (
	"context"
	"time"
)

// waitHandler pauses the run, publishing the remaining countdown every
// tick. The countdown is always cleared with a final state event, also when
// the wait is cancelled; that event carries the node's terminal status.
type waitHandler struct {
	clock Clock
	tick  time.Duration
}

func (h *waitHandler) Execute(ctx context.Context, node Node, edges []Edge, run *RunContext) (_ NodeResult, err error) {
	if err := expectType(node, NodeTypeWait); err != nil {
		return NodeResult{}, err
	}
	data, _ := DataAs[WaitData](node)

	timeout := max(int64(0), data.TimeoutMs)
	result := NodeResult{
		Result:     ExecutionResult{Text: "wait", NodeType: NodeTypeWait},
		NextNodeID: firstOutgoing(edges, node.ID),
	}

	data.Status = StatusProcessing
	run.EmitState(ctx, node, withCountdown(data, timeout))
	defer func() {
		data.Countdown = nil
		data.Status = StatusSuccess
		if err != nil {
			data.Status = StatusError
		}
		run.EmitState(context.WithoutCancel(ctx), node, data)
	}()

	if timeout == 0 {
		return result, nil
	}

	total := time.Duration(timeout) * time.Millisecond
	start := h.clock.Now()
	remaining := total
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return NodeResult{}, ctx.Err()
		case now := <-h.clock.After(min(h.tick, remaining)):
			remaining = max(0, total-now.Sub(start))
			run.EmitState(ctx, node, withCountdown(data, remaining.Milliseconds()))
		}
	}
	return result, nil
}

func withCountdown(d WaitData, ms int64) WaitData {
	d.Countdown = &ms
	return d
}
