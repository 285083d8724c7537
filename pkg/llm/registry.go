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

package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/chatflow/pkg/errors"
)

// ProviderConfig carries the settings a factory needs to build a provider.
type ProviderConfig struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single completion request.
	Timeout time.Duration

	Logger *slog.Logger
}

// ProviderFactory builds a Provider from configuration.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// Registry maps provider names to factories. Factories are registered at
// import time and instantiated on demand. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// RegisterFactory registers factory under name, replacing any previous one.
func (r *Registry) RegisterFactory(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds the named provider.
func (r *Registry) Create(name string, cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &errors.NotFoundError{Resource: "provider", ID: name}
	}

	provider, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider %s: %w", name, err)
	}
	return provider, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// RegisterFactory registers a factory with the default registry.
func RegisterFactory(name string, factory ProviderFactory) {
	defaultRegistry.RegisterFactory(name, factory)
}

// Create builds a provider from the default registry.
func Create(name string, cfg ProviderConfig) (Provider, error) {
	return defaultRegistry.Create(name, cfg)
}

// Names lists providers in the default registry.
func Names() []string {
	return defaultRegistry.Names()
}
