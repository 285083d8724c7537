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

// Package tools holds the registry of capabilities that agent nodes can
// select by id.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/llm"
)

// Tool is a named capability an agent can invoke.
type Tool interface {
	// Name is the id agent nodes use in selectedTools.
	Name() string

	Description() string

	// Schema describes the tool input.
	Schema() *Schema

	Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)
}

// Schema is a JSON-schema object describing tool inputs.
type Schema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

// Property describes a single input.
type Property struct {
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
}

// JSONSchema renders s as a generic map for model providers.
func (s *Schema) JSONSchema() map[string]interface{} {
	out := map[string]interface{}{"type": s.Type}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, p := range s.Properties {
			prop := map[string]interface{}{"type": p.Type}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			if p.Default != nil {
				prop["default"] = p.Default
			}
			props[name] = prop
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		required := make([]interface{}, len(s.Required))
		for i, r := range s.Required {
			required[i] = r
		}
		out["required"] = required
	}
	return out
}

// Registry is the set of tools available to agent nodes. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool. Names must be unique and non-empty.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Schema() == nil {
		return fmt.Errorf("tool schema cannot be nil: %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the named tool or a NotFoundError.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "tool", ID: name}
	}
	return tool, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns model-facing definitions for the given tool ids in
// the order given. Ids that are not registered are returned separately.
func (r *Registry) Definitions(ids []string) ([]llm.Tool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		defs    []llm.Tool
		missing []string
	)
	for _, id := range ids {
		tool, ok := r.tools[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		defs = append(defs, llm.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema().JSONSchema(),
		})
	}
	return defs, missing
}

// Execute runs the named tool after checking required inputs.
func (r *Registry) Execute(ctx context.Context, name string, inputs map[string]interface{}) (map[string]interface{}, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	for _, required := range tool.Schema().Required {
		if _, ok := inputs[required]; !ok {
			return nil, &errors.ValidationError{
				Field:   required,
				Message: fmt.Sprintf("required input missing for tool %s", name),
				Hint:    "Check the tool schema for required inputs",
			}
		}
	}

	outputs, err := tool.Execute(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}
	return outputs, nil
}
