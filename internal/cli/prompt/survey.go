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

package prompt

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter implements Prompter with terminal prompts.
type SurveyPrompter struct {
	interactive bool
}

// NewSurveyPrompter creates a survey-based prompter. Pass the result of
// StdinIsTerminal for interactive.
func NewSurveyPrompter(interactive bool) *SurveyPrompter {
	return &SurveyPrompter{interactive: interactive}
}

// Message asks for a chat message using survey.Input.
func (sp *SurveyPrompter) Message(ctx context.Context, question string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	err := survey.AskOne(&survey.Input{Message: question}, &result,
		survey.WithValidator(func(ans interface{}) error {
			str, _ := ans.(string)
			return ValidateMessage(str)
		}))
	if err != nil {
		return "", err
	}
	return result, ctx.Err()
}

// Select presents options using survey.Select.
func (sp *SurveyPrompter) Select(ctx context.Context, question string, options []string, def string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}
	if len(options) == 0 {
		return "", fmt.Errorf("no options to choose from")
	}

	var result string
	prompt := &survey.Select{Message: question, Options: options}
	if def != "" {
		prompt.Default = def
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, ctx.Err()
}

// Confirm asks a yes/no question using survey.Confirm.
func (sp *SurveyPrompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	if !sp.interactive {
		return false, ErrNonInteractive
	}

	var result bool
	if err := survey.AskOne(&survey.Confirm{Message: question, Default: def}, &result); err != nil {
		return false, err
	}
	return result, ctx.Err()
}

// IsInteractive reports whether prompts can be shown.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}
