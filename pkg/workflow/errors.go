package workflow

import (
	"fmt"
	"strings"

	"github.com/tombee/chatflow/pkg/errors"
)

// Run-fatal conditions. Returned errors wrap these in an errors.NodeError
// naming the offending node; match them with errors.Is.
var (
	ErrNodeNotFound       = errors.New("node not found")
	ErrNoteExecution      = errors.New("note nodes cannot be executed")
	ErrStepBudgetExceeded = errors.New("execution exceeded maximum steps (possible infinite loop)")
	ErrWrongNodeType      = errors.New("handler received a node of the wrong type")
	ErrNoModel            = errors.New("no model capability configured")
)

// InvalidGraphError is returned by Executor.Run when validation fails.
// No node runs and no event is emitted.
type InvalidGraphError struct {
	Result *ValidationResult
}

func (e *InvalidGraphError) Error() string {
	var sb strings.Builder
	sb.WriteString("workflow validation failed:")
	for _, issue := range e.Result.Errors {
		sb.WriteString("\n- ")
		sb.WriteString(issue.Message)
	}
	return sb.String()
}

// IsUserVisible implements errors.UserVisibleError.
func (e *InvalidGraphError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *InvalidGraphError) UserMessage() string {
	return fmt.Sprintf("workflow has %d validation error(s)", len(e.Result.Errors))
}

// Suggestion implements errors.UserVisibleError.
func (e *InvalidGraphError) Suggestion() string {
	return "run 'chatflow validate' on the workflow file for details"
}

func nodeError(n Node, cause error) error {
	return &errors.NodeError{NodeID: n.ID, NodeType: string(n.Type), Cause: cause}
}
