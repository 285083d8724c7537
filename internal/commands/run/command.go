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

// Package run implements `chatflow run`.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/chatflow/internal/cli/prompt"
	"github.com/tombee/chatflow/internal/cli/query"
	"github.com/tombee/chatflow/internal/commands/shared"
	pkgerrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow"
)

// Options holds the run command flags.
type Options struct {
	Messages []string
	Provider string
	Model    string
	Timeout  time.Duration
	Stream   bool
	Timeline bool
	JQ       string
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	opts := Options{Stream: true}

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow against a chat message",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Run validates a workflow file and executes it from its start node, feeding
the given message to the first agent. Agent output is streamed to stdout and
node status to stderr.

Without --message, the message is read from stdin when stdin is piped, or
asked for interactively.

With --json, every run event is written to stdout as one JSON object per
line, followed by a summary object.

See also: chatflow validate, chatflow serve`,
		Example: `  # Ask a question
  chatflow run flow.yaml -m "What is the capital of France?"

  # Use the offline echo provider
  chatflow run flow.yaml -m "hello" --provider echo

  # Pipe the message and keep the event stream
  echo "review this" | chatflow run flow.yaml --json > events.ndjson

  # Show per-node timing after the run
  chatflow run flow.yaml -m "hi" --timeline

  # Print only the final answer
  chatflow run flow.yaml -m "hi" --jq .output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], opts, prompt.NewSurveyPrompter(prompt.StdinIsTerminal()))
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Messages, "message", "m", nil, "User message (repeat for a multi-turn history)")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "Model provider (overrides config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Default model for agents that name none")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Abort the run after this long (default: no limit)")
	cmd.Flags().BoolVar(&opts.Stream, "stream", true, "Stream agent text as it is generated")
	cmd.Flags().BoolVar(&opts.Timeline, "timeline", false, "Print a timeline of node executions when the run ends")
	cmd.Flags().StringVar(&opts.JQ, "jq", "", "Filter the run summary with a jq expression")

	return cmd
}

func runWorkflow(cmd *cobra.Command, path string, opts Options, prompter prompt.Prompter) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	useJSON := shared.GetJSON()

	if opts.JQ != "" {
		if _, err := query.Compile(opts.JQ); err != nil {
			return &shared.ExitError{Code: shared.ExitUsage, Message: "invalid --jq expression", Cause: err}
		}
	}

	g, err := workflow.LoadFile(path)
	if err != nil {
		return shared.NewInvalidWorkflowError("failed to load workflow", err)
	}

	messages, err := collectMessages(ctx, cmd.InOrStdin(), opts.Messages, prompter)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitUsage, Message: "no message to run with", Cause: err}
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	rt, err := shared.NewRuntime(ctx, cfg, shared.RuntimeOptions{
		Provider:    opts.Provider,
		Model:       opts.Model,
		LogOutput:   stderr,
		TraceOutput: stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = rt.Close(shutdownCtx)
	}()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	recorder := workflow.NewRecorder()
	var printer workflow.Sink
	switch {
	case opts.JQ != "":
		printer = workflow.Discard
	case useJSON:
		printer = newJSONPrinter(stdout)
	default:
		printer = newConsolePrinter(stdout, stderr, opts.Stream, shared.GetQuiet())
	}

	result, runErr := rt.Executor.Run(ctx, workflow.RunRequest{
		Nodes:    g.Nodes,
		Edges:    g.Edges,
		Messages: messages,
	}, fanout(recorder, printer))

	switch {
	case opts.JQ != "":
		results, err := query.Run(ctx, opts.JQ, newSummary(result, runErr))
		if err != nil {
			return &shared.ExitError{Code: shared.ExitUsage, Message: "jq filter failed", Cause: err}
		}
		if err := query.Print(stdout, results); err != nil {
			return err
		}
	case useJSON:
		// The summary is the last line of the event stream.
		_ = json.NewEncoder(stdout).Encode(newSummary(result, runErr))
	default:
		printOutcome(stdout, stderr, g, result, runErr, opts.Stream, shared.GetQuiet())
	}

	if opts.Timeline && !useJSON && opts.JQ == "" {
		printTimeline(stderr, result, recorder.Events())
	}

	return classify(runErr, useJSON)
}

// collectMessages builds the initial conversation from flags, piped stdin
// or an interactive prompt, in that order.
func collectMessages(ctx context.Context, stdin io.Reader, flags []string, prompter prompt.Prompter) ([]llm.Message, error) {
	var texts []string
	for _, m := range flags {
		if err := prompt.ValidateMessage(m); err != nil {
			return nil, err
		}
		texts = append(texts, m)
	}

	if len(texts) == 0 {
		switch {
		case prompter != nil && prompter.IsInteractive():
			m, err := prompter.Message(ctx, "Message")
			if err != nil {
				return nil, err
			}
			texts = append(texts, m)
		case stdin != nil:
			data, err := io.ReadAll(io.LimitReader(stdin, prompt.MaxMessageLength+1))
			if err != nil {
				return nil, err
			}
			m := strings.TrimSpace(string(data))
			if err := prompt.ValidateMessage(m); err != nil {
				return nil, err
			}
			texts = append(texts, m)
		default:
			return nil, prompt.ErrNonInteractive
		}
	}

	// Repeated --message flags alternate user and assistant turns, ending
	// with the user.
	messages := make([]llm.Message, len(texts))
	for i, text := range texts {
		role := llm.MessageRoleUser
		if (len(texts)-1-i)%2 == 1 {
			role = llm.MessageRoleAssistant
		}
		messages[i] = llm.Message{Role: role, Content: text}
	}
	return messages, nil
}

// classify maps a run error to an exit error. When the outcome was already
// reported in JSON the exit error is silent.
func classify(err error, reported bool) error {
	if err == nil {
		return nil
	}
	code := shared.ExitFailure
	var providerErr *pkgerrors.ProviderError
	if errors.As(err, &providerErr) {
		code = shared.ExitProviderError
	}
	if reported {
		return &shared.ExitError{Code: code}
	}

	var invalid *workflow.InvalidGraphError
	switch {
	case errors.As(err, &invalid):
		return &shared.ExitError{Code: shared.ExitFailure, Message: "workflow is invalid"}
	case code == shared.ExitProviderError:
		return shared.NewProviderError("model provider failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.NewExecutionError("run timed out", err)
	}
	return shared.NewExecutionError("run failed", err)
}

func fanout(sinks ...workflow.Sink) workflow.Sink {
	return workflow.SinkFunc(func(ctx context.Context, ev workflow.Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Emit(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
