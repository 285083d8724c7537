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

/*
Package cli provides the root command for the chatflow CLI.

This package builds the Cobra command tree and handles global concerns like
version information, persistent flags and exit codes. Individual commands
live in the internal/commands subpackages.

# Command Tree

	chatflow
	├── run           Run a workflow against a message
	├── validate      Validate a workflow file
	├── init          Create a workflow from a template
	├── templates     List or show starter workflows
	├── schema        Print the workflow file JSON Schema
	├── serve         Serve the chat HTTP API
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: Run failed or workflow invalid
  - 2: Invalid usage
  - 3: Configuration error
  - 4: Model provider error
*/
package cli
