package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tombee/chatflow/internal/cli/format"
	"github.com/tombee/chatflow/internal/cli/timeline"
	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/pkg/workflow"
)

// consolePrinter writes agent text to stdout and node progress to stderr.
type consolePrinter struct {
	mu       sync.Mutex
	stdout   io.Writer
	stderr   io.Writer
	stream   bool
	quiet    bool
	midLine  bool
	lastNode string
}

func newConsolePrinter(stdout, stderr io.Writer, stream, quiet bool) *consolePrinter {
	return &consolePrinter{stdout: stdout, stderr: stderr, stream: stream, quiet: quiet}
}

func (p *consolePrinter) Emit(_ context.Context, ev workflow.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case workflow.EventTextDelta:
		if !p.stream {
			return nil
		}
		if p.lastNode != "" && p.lastNode != ev.NodeID {
			p.endLine()
		}
		p.lastNode = ev.NodeID
		if ev.Delta != "" {
			_, err := io.WriteString(p.stdout, format.StripANSI(ev.Delta))
			p.midLine = !strings.HasSuffix(ev.Delta, "\n")
			return err
		}

	case workflow.EventNodeStatus:
		if p.quiet || ev.Status == workflow.StatusIdle {
			return nil
		}
		p.endLine()
		name := ev.Name
		if name == "" {
			name = ev.NodeID
		}
		line := shared.RenderNodeStatus(name, ev.NodeType, ev.Status)
		if ev.Error != "" {
			line += " " + shared.Muted.Render(ev.Error)
		}
		_, err := fmt.Fprintln(p.stderr, line)
		return err

	case workflow.EventToolCall:
		if p.quiet || ev.ToolCall == nil {
			return nil
		}
		p.endLine()
		_, err := fmt.Fprintf(p.stderr, "  %s %s %s\n", shared.StatusInfo.Render("↳"), ev.ToolCall.Name, shared.Muted.Render(ev.ToolCall.Arguments))
		return err

	case workflow.EventToolResult:
		if p.quiet || ev.ToolResult == nil || ev.ToolResult.Error == "" {
			return nil
		}
		p.endLine()
		_, err := fmt.Fprintf(p.stderr, "  %s\n", shared.RenderWarn(ev.ToolResult.Name+": "+ev.ToolResult.Error))
		return err

	case workflow.EventFinish:
		p.endLine()
	}
	return nil
}

// endLine terminates streamed text so status lines start on a fresh line.
func (p *consolePrinter) endLine() {
	if p.midLine {
		fmt.Fprintln(p.stdout)
		p.midLine = false
	}
}

// jsonPrinter writes one JSON object per event.
type jsonPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONPrinter(w io.Writer) *jsonPrinter {
	return &jsonPrinter{enc: json.NewEncoder(w)}
}

func (p *jsonPrinter) Emit(_ context.Context, ev workflow.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(ev)
}

// Summary is the final JSON object written by `run --json`.
type Summary struct {
	shared.JSONResponse
	RunID      string                     `json:"run_id"`
	State      workflow.State             `json:"state"`
	Path       []string                   `json:"path"`
	Steps      int                        `json:"steps"`
	Error      string                     `json:"error,omitempty"`
	Output     string                     `json:"output,omitempty"`
	Validation *workflow.ValidationResult `json:"validation,omitempty"`
}

func newSummary(result *workflow.RunResult, err error) Summary {
	s := Summary{JSONResponse: shared.NewJSONResponse("run", err == nil)}
	if result != nil {
		s.RunID = result.RunID
		s.State = result.State
		s.Path = result.Path
		s.Steps = result.Steps
		s.Validation = result.Validation
		s.Output = finalOutput(result)
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// finalOutput is the text of the last agent on the run path.
func finalOutput(result *workflow.RunResult) string {
	for i := len(result.Path) - 1; i >= 0; i-- {
		r, ok := result.Results[result.Path[i]]
		if ok && r.NodeType == workflow.NodeTypeAgent {
			return r.Text
		}
	}
	return ""
}

func printOutcome(stdout, stderr io.Writer, g *workflow.Graph, result *workflow.RunResult, err error, streamed, quiet bool) {
	if result != nil && result.Validation != nil {
		for _, issue := range result.Validation.Errors {
			fmt.Fprintf(stderr, "%s %s\n", shared.RenderError(shared.Title(string(issue.Type))+":"), issue.Message)
		}
		return
	}
	if result == nil {
		return
	}

	if !streamed {
		printAgentOutputs(stdout, g, result)
	}
	if quiet || err != nil {
		return
	}
	fmt.Fprintln(stderr, shared.RenderOK(fmt.Sprintf("run %s %s in %d step(s)", result.RunID, result.State, result.Steps)))
}

// printAgentOutputs renders every visible agent output on the run path.
func printAgentOutputs(w io.Writer, g *workflow.Graph, result *workflow.RunResult) {
	isTTY := format.IsTTY()
	for _, id := range result.Path {
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		data, ok := workflow.DataAs[workflow.AgentData](node)
		if !ok || data.HideResponseInChat {
			continue
		}
		r, ok := result.Results[id]
		if !ok {
			continue
		}
		out, err := format.AgentOutput(r.Text, data.SourceType.Type, isTTY)
		if err != nil {
			out = r.Text
		}
		fmt.Fprintln(w, strings.TrimRight(out, "\n"))
	}
}

func printTimeline(w io.Writer, result *workflow.RunResult, events []workflow.Event) {
	spans := timeline.FromEvents(events)
	if len(spans) == 0 || result == nil {
		return
	}
	r, err := timeline.NewRenderer()
	if err != nil {
		fmt.Fprintln(w, shared.RenderWarn(err.Error()))
		return
	}
	out, err := r.Render(result.RunID, spans)
	if err != nil {
		return
	}
	fmt.Fprint(w, out)
}
