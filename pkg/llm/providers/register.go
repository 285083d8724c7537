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

// Package providers registers all built-in LLM provider factories.
//
// Import this package to register the factories with the global registry:
//
//	import _ "github.com/tombee/chatflow/pkg/llm/providers"
//
// This registers factories but does not instantiate providers.
// Call llm.Create to build one from configuration.
package providers

import "github.com/tombee/chatflow/pkg/llm"

func init() {
	// Ollama - local models over HTTP
	llm.RegisterFactory("ollama", NewOllama)

	// Echo - offline provider for dry runs and tests
	llm.RegisterFactory("echo", NewEcho)
}
