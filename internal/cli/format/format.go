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

// Package format renders agent output for the terminal.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"

	"github.com/tombee/chatflow/pkg/workflow"
)

// Output size limits
const (
	maxJSONSize     = 10 * 1024 * 1024 // 10MB
	maxMarkdownSize = 5 * 1024 * 1024  // 5MB
)

// ansiEscapeRegex matches ANSI escape sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// StripANSI removes escape sequences. Model output is untrusted and must
// not drive the terminal.
func StripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

func enforceSize(content string, kind string, maxSize int) error {
	if len(content) > maxSize {
		return fmt.Errorf("output size (%d bytes) exceeds maximum for %s output (%d bytes)", len(content), kind, maxSize)
	}
	return nil
}

// Markdown renders markdown for a terminal. Plain text is returned when
// isTTY is false or rendering fails.
func Markdown(content string, isTTY bool) (string, error) {
	if err := enforceSize(content, "markdown", maxMarkdownSize); err != nil {
		return "", err
	}
	content = StripANSI(content)
	if !isTTY {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content, nil
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content, nil
	}
	return strings.TrimRight(rendered, "\n") + "\n", nil
}

// JSON pretty-prints JSON with 2-space indentation and highlights it when
// isTTY is true.
func JSON(content string, isTTY bool) (string, error) {
	if err := enforceSize(content, "json", maxJSONSize); err != nil {
		return "", err
	}

	var obj interface{}
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	out := StripANSI(string(formatted))
	if !isTTY {
		return out, nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, out, "json", "terminal256", "monokai"); err != nil {
		return out, nil
	}
	return buf.String(), nil
}

// AgentOutput formats what an agent node produced. Structured output is
// shown as JSON, text as markdown. Structured output that is not valid JSON
// falls back to text.
func AgentOutput(text string, kind workflow.OutputKind, isTTY bool) (string, error) {
	if kind == workflow.OutputStructured {
		if out, err := JSON(text, isTTY); err == nil {
			return out, nil
		}
	}
	return Markdown(text, isTTY)
}
