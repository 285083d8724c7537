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

package shared

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tombee/chatflow/pkg/workflow"
)

var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles informational text
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Status symbols
const (
	SymbolOK      = "✓"
	SymbolWarn    = "⚠"
	SymbolError   = "✗"
	SymbolInfo    = "•"
	SymbolRunning = "▸"
)

var titleCaser = cases.Title(language.English)

// RenderOK renders a success line.
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning line.
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders an error line.
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderLabel renders a muted label.
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// Title converts a kebab-case identifier such as "no-start-node" into
// "No Start Node".
func Title(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "-", " "))
}

// RenderNodeStatus renders a node status transition such as
// "✓ Assistant (agent) Success".
func RenderNodeStatus(name string, nodeType workflow.NodeType, status workflow.NodeStatus) string {
	label := name + " " + Muted.Render("("+string(nodeType)+")")
	state := Title(string(status))
	switch status {
	case workflow.StatusSuccess:
		return StatusOK.Render(SymbolOK) + " " + label + " " + StatusOK.Render(state)
	case workflow.StatusError:
		return StatusError.Render(SymbolError) + " " + label + " " + StatusError.Render(state)
	case workflow.StatusProcessing:
		return StatusInfo.Render(SymbolRunning) + " " + label + " " + StatusInfo.Render(state)
	default:
		return Muted.Render(SymbolInfo) + " " + label + " " + Muted.Render(state)
	}
}
