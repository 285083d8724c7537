package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/pkg/workflow/schema"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Output the workflow file JSON Schema",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Schema prints the JSON Schema that workflow files are checked against
before graph validation. Editors can use it for completion.

See also: chatflow validate`,
		Example: `  # Save the schema for an editor
  chatflow schema > graph.schema.json

  # Output YAML instead
  chatflow schema --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schema.GraphSchema()
			if err != nil {
				return shared.NewExecutionError("failed to load schema", err)
			}

			var out []byte
			switch outputFormat {
			case "json":
				out, err = json.MarshalIndent(s, "", "  ")
			case "yaml":
				out, err = yaml.Marshal(s)
			default:
				return &shared.ExitError{
					Code:    shared.ExitUsage,
					Message: fmt.Sprintf("invalid output format: %s (must be 'json' or 'yaml')", outputFormat),
				}
			}
			if err != nil {
				return shared.NewExecutionError("failed to encode schema", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json, yaml")

	return cmd
}
