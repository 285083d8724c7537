package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/chatflow/internal/cli/prompt"
	"github.com/tombee/chatflow/internal/commands/shared"
	"github.com/tombee/chatflow/internal/templates"
)

// InitOptions holds the init command flags.
type InitOptions struct {
	Template string
	Name     string
	Force    bool
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var opts InitOptions

	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Create a workflow file from a template",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Init writes a new workflow file from one of the built-in templates.

Without --template, the template is chosen interactively when a terminal is
attached and defaults to "blank" otherwise. An existing file is only
replaced after confirmation, or with --force.

See also: chatflow templates, chatflow validate`,
		Example: `  # Start from a blank workflow
  chatflow init flow.yaml

  # Start from the code analysis router
  chatflow init review.yaml --template code-analysis --name review`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runInit(ctx, cmd, args[0], opts, prompt.NewSurveyPrompter(prompt.StdinIsTerminal()))
		},
	}

	cmd.Flags().StringVarP(&opts.Template, "template", "t", "", "Template to start from")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Workflow name (default: file name)")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, path string, opts InitOptions, p prompt.Prompter) error {
	out := cmd.OutOrStdout()

	name := opts.Template
	if name == "" {
		chosen, err := chooseTemplate(ctx, p)
		if err != nil {
			return err
		}
		name = chosen
	}
	if !templates.Exists(name) {
		return &shared.ExitError{Code: shared.ExitUsage, Message: fmt.Sprintf("unknown template %q (run 'chatflow templates' to list them)", name)}
	}

	workflowName := opts.Name
	if workflowName == "" {
		workflowName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		ok, err := p.Confirm(ctx, fmt.Sprintf("%s already exists. Overwrite?", path), false)
		if errors.Is(err, prompt.ErrNonInteractive) {
			return &shared.ExitError{Code: shared.ExitFailure, Message: fmt.Sprintf("%s already exists (use --force to overwrite)", path)}
		}
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	content, err := templates.Render(name, workflowName)
	if err != nil {
		return shared.NewExecutionError("failed to render template", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return shared.NewExecutionError("failed to create directory", err)
		}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return shared.NewExecutionError("failed to write workflow", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, struct {
			shared.JSONResponse
			Path     string `json:"path"`
			Template string `json:"template"`
		}{shared.NewJSONResponse("init", true), path, name})
	}
	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Created %s from the %s template", path, name)))
	if !shared.GetQuiet() {
		fmt.Fprintf(out, "\nNext: chatflow validate %s\n", path)
	}
	return nil
}

// chooseTemplate asks for a template when a terminal is attached.
func chooseTemplate(ctx context.Context, p prompt.Prompter) (string, error) {
	if p == nil || !p.IsInteractive() {
		return "blank", nil
	}
	list, err := templates.List()
	if err != nil {
		return "", err
	}
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
	}
	return p.Select(ctx, "Template", names, "blank")
}
