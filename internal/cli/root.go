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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/chatflow/internal/commands/run"
	"github.com/tombee/chatflow/internal/commands/serve"
	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/internal/commands/validate"
	versioncmd "github.com/tombee/chatflow/internal/commands/version"
	"github.com/tombee/chatflow/internal/commands/workflow"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command with every subcommand
// registered.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatflow",
		Short: "Chatflow - visual agent workflows for chat",
		Long: `Chatflow runs chat workflows built from start, agent, branch, wait and end
nodes. A workflow file describes the graph; each run walks it from the start
node, calling a language model at every agent and choosing a path at every
branch.

Run 'chatflow init flow.yaml' to create a workflow from a template.
Run 'chatflow run flow.yaml -m "hello"' to try it.`,
		SilenceUsage:  true,
		SilenceErrors: true, // HandleExitError prints errors with the right exit code
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/chatflow/config.yaml)")

	cmd.AddGroup(
		&cobra.Group{ID: "workflow", Title: "Workflow Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)

	for _, sub := range []*cobra.Command{
		run.NewCommand(),
		validate.NewCommand(),
		workflow.NewInitCommand(),
		workflow.NewTemplatesCommand(),
		workflow.NewSchemaCommand(),
		serve.NewCommand(),
	} {
		sub.GroupID = sub.Annotations["group"]
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(versioncmd.NewVersionCommand())

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
