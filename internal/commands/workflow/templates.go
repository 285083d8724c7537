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

// Package workflow implements the commands that author workflow files:
// templates, init and schema.
package workflow

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/internal/templates"
)

// TemplatesResponse is the JSON output of `templates`.
type TemplatesResponse struct {
	shared.JSONResponse
	Templates []templates.Template `json:"templates"`
}

// TemplateResponse is the JSON output of `templates <name>`.
type TemplateResponse struct {
	shared.JSONResponse
	Template templates.Template `json:"template"`
	Content  string             `json:"content"`
}

// NewTemplatesCommand creates the templates command
func NewTemplatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates [name]",
		Short: "List starter workflows or show one",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Templates lists the starter workflows built into chatflow. With a name it
prints that template's workflow file.

See also: chatflow init`,
		Example: `  # List templates
  chatflow templates

  # Show the code analysis template
  chatflow templates code-analysis

  # Template names for scripting
  chatflow templates --json | jq -r '.templates[].name'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showTemplate(cmd, args[0])
			}
			return listTemplates(cmd)
		},
	}
	return cmd
}

func listTemplates(cmd *cobra.Command) error {
	list, err := templates.List()
	if err != nil {
		return shared.NewExecutionError("failed to list templates", err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, TemplatesResponse{
			JSONResponse: shared.NewJSONResponse("templates", true),
			Templates:    list,
		})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Category, t.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !shared.GetQuiet() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Muted.Render("Use 'chatflow init <file> --template <name>' to start from a template"))
	}
	return nil
}

func showTemplate(cmd *cobra.Command, name string) error {
	t, err := templates.Describe(name)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitUsage, Message: fmt.Sprintf("unknown template %q (run 'chatflow templates' to list them)", name)}
	}
	content, err := templates.Render(name, name)
	if err != nil {
		return shared.NewExecutionError("failed to read template", err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, TemplateResponse{
			JSONResponse: shared.NewJSONResponse("templates", true),
			Template:     t,
			Content:      string(content),
		})
	}
	_, err = out.Write(content)
	return err
}
