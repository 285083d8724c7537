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

// Package prompt collects interactive input for commands: the chat message
// for `chatflow run` and the template choice for `chatflow init`.
package prompt

import (
	"context"
	"errors"
	"os"

	"golang.org/x/term"
)

// ErrNonInteractive is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

// Prompter collects input from the user.
// Implementations are SurveyPrompter (terminal) and MockPrompter (tests).
type Prompter interface {
	// Message asks for a chat message.
	Message(ctx context.Context, question string) (string, error)

	// Select presents options and returns the chosen one.
	Select(ctx context.Context, question string, options []string, def string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string, def bool) (bool, error)

	// IsInteractive reports whether prompts can be shown.
	IsInteractive() bool
}

// StdinIsTerminal reports whether stdin is attached to a terminal.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
