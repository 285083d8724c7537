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

// Package timeline renders an ASCII timeline of a workflow run from its
// event stream.
package timeline

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/tombee/chatflow/pkg/workflow"
)

const (
	// MinTerminalWidth is the narrowest supported terminal.
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars
	DefaultBarWidth = 40

	StatusIconOK      = "✓"
	StatusIconError   = "✗"
	StatusIconPending = "…"
)

// Span is one bar in the timeline: a node execution, or a tool call nested
// under the agent node that made it.
type Span struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Failed    bool
	Pending   bool
	Level     int
}

// Duration is the span length.
func (s Span) Duration() time.Duration {
	if s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// FromEvents pairs node-execution-status transitions (processing, then
// success or error) into spans, in execution order. Tool calls become
// child spans of the running node. Spans still open at the end of the
// stream are marked pending and end at the last event.
func FromEvents(events []workflow.Event) []Span {
	var spans []Span
	open := map[string]int{}
	tools := map[string]int{}
	var last time.Time

	for _, ev := range events {
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
		switch ev.Type {
		case workflow.EventNodeStatus:
			switch ev.Status {
			case workflow.StatusProcessing:
				name := ev.Name
				if name == "" {
					name = ev.NodeID
				}
				open[ev.NodeID] = len(spans)
				spans = append(spans, Span{
					Name:      fmt.Sprintf("%s (%s)", name, ev.NodeType),
					StartTime: ev.Timestamp,
					Pending:   true,
				})
			case workflow.StatusSuccess, workflow.StatusError:
				i, ok := open[ev.NodeID]
				if !ok {
					continue
				}
				delete(open, ev.NodeID)
				spans[i].EndTime = ev.Timestamp
				spans[i].Pending = false
				spans[i].Failed = ev.Status == workflow.StatusError
			}

		case workflow.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			tools[ev.ToolCall.ID] = len(spans)
			spans = append(spans, Span{
				Name:      ev.ToolCall.Name,
				StartTime: ev.Timestamp,
				Pending:   true,
				Level:     1,
			})

		case workflow.EventToolResult:
			if ev.ToolResult == nil {
				continue
			}
			i, ok := tools[ev.ToolResult.ToolCallID]
			if !ok {
				continue
			}
			delete(tools, ev.ToolResult.ToolCallID)
			spans[i].EndTime = ev.Timestamp
			spans[i].Pending = false
			spans[i].Failed = ev.ToolResult.Error != ""
		}
	}

	for i := range spans {
		if spans[i].Pending {
			spans[i].EndTime = last
		}
	}
	return spans
}

// Renderer renders ASCII timelines.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a renderer sized to the terminal on fd 1. Output that
// is not a terminal gets 100 columns.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(1)
	if err != nil {
		width = 100
	}
	return NewRendererWidth(width)
}

// NewRendererWidth creates a renderer for a fixed width.
func NewRendererWidth(width int) (*Renderer, error) {
	if width < MinTerminalWidth {
		return nil, fmt.Errorf("terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// "│ name(22) bar  duration(6)  icon │" needs about 40 columns besides the bar.
	barWidth := width - 40
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}
	return &Renderer{Width: width, BarWidth: barWidth}, nil
}

// Render draws the timeline for a run.
func (r *Renderer) Render(runID string, spans []Span) (string, error) {
	if len(spans) == 0 {
		return "", fmt.Errorf("no spans to render")
	}

	minTime, maxTime := bounds(spans)
	total := maxTime.Sub(minTime)

	var sb strings.Builder
	inner := r.lineWidth()
	border := strings.Repeat("─", inner)

	sb.WriteString("┌" + border + "┐\n")
	title := fmt.Sprintf(" Run: %s", runID)
	totalStr := fmt.Sprintf("Total: %s ", formatDuration(total))
	pad := inner - utf8.RuneCountInString(totalStr)
	sb.WriteString("│" + padRight(truncate(title, pad), pad) + totalStr + "│\n")
	sb.WriteString("├" + border + "┤\n")

	for _, span := range spans {
		sb.WriteString(r.renderSpan(span, minTime, total))
	}

	sb.WriteString("└" + border + "┘\n")
	return sb.String(), nil
}

const nameWidth = 22

// lineWidth is the number of runes between the two border characters.
func (r *Renderer) lineWidth() int {
	return 1 + nameWidth + 1 + r.BarWidth + 2 + 7 + 2 + 1 + 1
}

func bounds(spans []Span) (time.Time, time.Time) {
	minTime := spans[0].StartTime
	maxTime := spans[0].EndTime
	for _, span := range spans {
		if span.StartTime.Before(minTime) {
			minTime = span.StartTime
		}
		if span.EndTime.After(maxTime) {
			maxTime = span.EndTime
		}
	}
	return minTime, maxTime
}

func (r *Renderer) renderSpan(span Span, minTime time.Time, total time.Duration) string {
	startPos, barLength := 0, r.BarWidth
	if total > 0 {
		startPos = int(float64(span.StartTime.Sub(minTime)) / float64(total) * float64(r.BarWidth))
		barLength = int(float64(span.Duration()) / float64(total) * float64(r.BarWidth))
	}
	if startPos >= r.BarWidth {
		startPos = r.BarWidth - 1
	}
	if barLength < 1 {
		barLength = 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	bar := make([]rune, r.BarWidth)
	for i := range bar {
		if i >= startPos && i < startPos+barLength {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}

	icon := StatusIconOK
	switch {
	case span.Failed:
		icon = StatusIconError
	case span.Pending:
		icon = StatusIconPending
	}

	prefix := ""
	if span.Level > 0 {
		prefix = strings.Repeat("  ", span.Level-1) + "  └─ "
	}
	width := nameWidth - utf8.RuneCountInString(prefix)
	name := prefix + padRight(truncate(span.Name, width), width)

	return fmt.Sprintf("│ %s %s  %7s  %s │\n", name, string(bar), formatDuration(span.Duration()), icon)
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// truncate shortens s to maxLen runes with an ellipsis if needed.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
