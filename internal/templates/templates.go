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

// Package templates holds the built-in workflow graphs offered by
// `chatflow init` and the server's template endpoints.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	cferrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/workflow"
)

// Embed workflow templates into the binary for offline availability
//
//go:embed *.yaml
var embeddedFS embed.FS

// Template represents metadata about an embedded workflow template
type Template struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Suggestions []string `json:"suggestions"`
	FilePath    string   `json:"-"`
}

type metadata struct {
	title       string
	description string
	category    string
	suggestions []string
}

var catalog = map[string]metadata{
	"blank": {
		title:       "Blank",
		description: "A blank workflow",
		category:    "Personal",
	},
	"code-analysis": {
		title:       "Code Agent",
		description: "Intelligent routing to language-specific code experts",
		category:    "Development",
		suggestions: []string{
			"Review this React component and suggest improvements",
			"Debug this Python function that's throwing an error",
			"Help me optimize this database query",
		},
	},
}

// List returns all available embedded templates sorted by name.
func List() ([]Template, error) {
	entries, err := embeddedFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		templates = append(templates, describe(name))
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// Describe returns the metadata of one template.
func Describe(name string) (Template, error) {
	if !Exists(name) {
		return Template{}, &cferrors.NotFoundError{Resource: "template", ID: name}
	}
	return describe(name), nil
}

func describe(name string) Template {
	meta, ok := catalog[name]
	if !ok {
		meta = metadata{title: name, description: "Workflow template", category: "General"}
	}
	suggestions := meta.suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return Template{
		Name:        name,
		Title:       meta.title,
		Description: meta.description,
		Category:    meta.category,
		Suggestions: suggestions,
		FilePath:    name + ".yaml",
	}
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// Get returns the raw content of a specific template by name
func Get(name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid template name: %q", name)
	}
	content, err := embeddedFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, &cferrors.NotFoundError{Resource: "template", ID: name}
	}
	return content, nil
}

// Exists checks if a template with the given name exists
func Exists(name string) bool {
	if !validName(name) {
		return false
	}
	_, err := embeddedFS.ReadFile(name + ".yaml")
	return err == nil
}

// Render renders a template with the given workflow name substituted for
// the {{.Name}} placeholder.
func Render(templateName, workflowName string) ([]byte, error) {
	templateContent, err := Get(templateName)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(templateName).Parse(string(templateContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{"Name": workflowName}); err != nil {
		return nil, fmt.Errorf("failed to render template %q: %w", templateName, err)
	}
	return buf.Bytes(), nil
}

// Load renders a template and parses it into a graph. An empty
// workflowName uses the template name.
func Load(templateName, workflowName string) (*workflow.Graph, error) {
	if workflowName == "" {
		workflowName = templateName
	}
	content, err := Render(templateName, workflowName)
	if err != nil {
		return nil, err
	}
	return workflow.Parse(content)
}
