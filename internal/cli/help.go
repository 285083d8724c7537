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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/chatflow/internal/commands/shared"
)

// CommandHelp describes one chatflow command for scripts and editors.
type CommandHelp struct {
	Name    string     `json:"name"`
	Summary string     `json:"summary"`
	Usage   string     `json:"usage"`
	Group   string     `json:"group,omitempty"`
	Example string     `json:"example,omitempty"`
	Flags   []FlagHelp `json:"flags,omitempty"`
}

// FlagHelp describes a command line flag.
type FlagHelp struct {
	Name    string `json:"name"`
	Short   string `json:"short,omitempty"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
}

// HelpResponse is the --json output of the help command. Commands is set
// when listing, Command when one command was asked for.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandHelp `json:"commands,omitempty"`
	Command     *CommandHelp  `json:"command,omitempty"`
	GlobalFlags []FlagHelp    `json:"global_flags"`
}

// NewHelpCommand replaces cobra's help command with one that can answer in
// JSON.
func NewHelpCommand(root *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Show the commands chatflow offers, or the usage of one of them.

Use --json for machine-readable output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := root
			if len(args) == 1 {
				found, _, err := root.Find(args)
				if err != nil || found == root {
					return fmt.Errorf("unknown command %q; run 'chatflow help' for a list", args[0])
				}
				target = found
			}

			if !shared.GetJSON() && !jsonOutput {
				return target.Help()
			}

			resp := HelpResponse{
				JSONResponse: shared.NewJSONResponse("help", true),
				GlobalFlags:  describeFlags(root.PersistentFlags()),
			}
			if target == root {
				for _, c := range root.Commands() {
					if c.IsAvailableCommand() {
						resp.Commands = append(resp.Commands, describeCommand(c))
					}
				}
			} else {
				resp.Command = ptrTo(describeCommand(target))
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func describeCommand(c *cobra.Command) CommandHelp {
	return CommandHelp{
		Name:    c.Name(),
		Summary: c.Short,
		Usage:   c.UseLine(),
		Group:   c.GroupID,
		Example: c.Example,
		Flags:   describeFlags(c.LocalNonPersistentFlags()),
	}
}

func describeFlags(fs *pflag.FlagSet) []FlagHelp {
	flags := []FlagHelp{}
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		flags = append(flags, FlagHelp{
			Name:    f.Name,
			Short:   f.Shorthand,
			Usage:   f.Usage,
			Default: f.DefValue,
		})
	})
	return flags
}

func ptrTo[T any](v T) *T { return &v }
