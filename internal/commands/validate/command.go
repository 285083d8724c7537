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

// Package validate implements `chatflow validate`.
package validate

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/internal/watch"
	"github.com/tombee/chatflow/pkg/workflow"
)

// Report is the --json output of validate.
type Report struct {
	shared.JSONResponse
	File     string                     `json:"file"`
	Name     string                     `json:"name,omitempty"`
	Nodes    int                        `json:"nodes"`
	Edges    int                        `json:"edges"`
	Valid    bool                       `json:"valid"`
	Errors   []workflow.ValidationIssue `json:"errors"`
	Warnings []workflow.ValidationIssue `json:"warnings"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var watchMode bool

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Check a workflow graph for structural errors",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Validate parses a workflow file (YAML or JSON) and checks the graph: a single
start node, at least one end node, valid edges and handles, no cycles, every node
reachable, and well-formed branch conditions.

Errors make the workflow unrunnable; warnings (connected notes, empty or
unconnected branch handles) do not.

Exit codes: 0 when the workflow is valid, 1 when it is not.

See also: chatflow run, chatflow templates`,
		Example: `  # Validate a workflow
  chatflow validate flow.yaml

  # Machine-readable result
  chatflow validate flow.yaml --json | jq '.errors'

  # Re-validate on every save
  chatflow validate flow.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchMode {
				return runWatch(cmd.Context(), cmd.OutOrStdout(), args[0])
			}
			valid, err := validateFile(cmd.OutOrStdout(), args[0], shared.GetJSON())
			if err != nil {
				return err
			}
			if !valid {
				return &shared.ExitError{Code: shared.ExitFailure}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Re-validate whenever the file changes")
	return cmd
}

// validateFile prints the validation outcome for path. The error is
// non-nil only when the file cannot be read.
func validateFile(w io.Writer, path string, useJSON bool) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if useJSON {
			_ = shared.EmitJSONError(w, "validate", []shared.JSONError{{
				Code:       "file-not-found",
				Message:    err.Error(),
				Suggestion: "Check that the file path is correct and the file exists",
			}})
			return false, &shared.ExitError{Code: shared.ExitUsage}
		}
		return false, &shared.ExitError{Code: shared.ExitUsage, Message: "failed to read workflow file", Cause: err}
	}

	g, err := workflow.LoadFile(path)
	if err != nil {
		if useJSON {
			_ = shared.EmitJSONError(w, "validate", []shared.JSONError{{
				Code:       "malformed-document",
				Message:    err.Error(),
				Suggestion: "Compare the document with schemas/graph.schema.json",
			}})
		} else {
			fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s: %v", path, err)))
		}
		return false, nil
	}

	result := g.Validate()
	if useJSON {
		return result.Valid, shared.EmitJSON(w, Report{
			JSONResponse: shared.NewJSONResponse("validate", result.Valid),
			File:         path,
			Name:         g.Name,
			Nodes:        len(g.Nodes),
			Edges:        len(g.Edges),
			Valid:        result.Valid,
			Errors:       result.Errors,
			Warnings:     result.Warnings,
		})
	}

	printResult(w, path, g, result)
	return result.Valid, nil
}

func printResult(w io.Writer, path string, g *workflow.Graph, result *workflow.ValidationResult) {
	for _, issue := range result.Errors {
		fmt.Fprintf(w, "%s %s %s\n", shared.RenderError(path+":"), shared.Bold.Render(shared.Title(string(issue.Type))+":"), issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(w, "%s %s %s\n", shared.RenderWarn(path+":"), shared.Title(string(issue.Type))+":", issue.Message)
	}

	name := g.Name
	if name == "" {
		name = path
	}
	summary := fmt.Sprintf("%s (%d nodes, %d edges)", name, len(g.Nodes), len(g.Edges))
	switch {
	case !result.Valid:
		fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s is invalid: %d error(s), %d warning(s)", summary, len(result.Errors), len(result.Warnings))))
	case len(result.Warnings) > 0:
		fmt.Fprintln(w, shared.RenderWarn(fmt.Sprintf("%s is valid with %d warning(s)", summary, len(result.Warnings))))
	default:
		fmt.Fprintln(w, shared.RenderOK(summary+" is valid"))
	}
}

// runWatch validates path now and after every change until ctx is done.
func runWatch(ctx context.Context, w io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := validateFile(w, path, shared.GetJSON()); err != nil {
		return err
	}

	var mu sync.Mutex
	watcher, err := watch.New(watch.Config{
		OnChange: func(string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(w, shared.RenderLabel("── "+path+" changed"))
			if _, err := validateFile(w, path, shared.GetJSON()); err != nil {
				fmt.Fprintln(w, shared.RenderError(err.Error()))
			}
		},
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	if !shared.GetJSON() {
		fmt.Fprintln(w, shared.RenderLabel("watching "+path+" (Ctrl+C to stop)"))
	}

	<-ctx.Done()
	return nil
}
