package prompt

import (
	"context"
	"fmt"
)

// MockPrompter answers prompts from a fixed list of responses, in order.
type MockPrompter struct {
	interactive bool
	responses   []interface{}
	calls       []string
}

// NewMockPrompter creates a mock prompter.
func NewMockPrompter(interactive bool, responses ...interface{}) *MockPrompter {
	return &MockPrompter{interactive: interactive, responses: responses}
}

func (mp *MockPrompter) next(kind, question string) (interface{}, error) {
	mp.calls = append(mp.calls, kind+":"+question)
	if !mp.interactive {
		return nil, ErrNonInteractive
	}
	if len(mp.responses) == 0 {
		return nil, fmt.Errorf("no mock response for %s %q", kind, question)
	}
	r := mp.responses[0]
	mp.responses = mp.responses[1:]
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r, nil
}

// Message returns the next response as a string.
func (mp *MockPrompter) Message(_ context.Context, question string) (string, error) {
	r, err := mp.next("message", question)
	if err != nil {
		return "", err
	}
	s, ok := r.(string)
	if !ok {
		return "", fmt.Errorf("mock response %v is not a string", r)
	}
	return s, ValidateMessage(s)
}

// Select returns the next response, which must be one of options.
func (mp *MockPrompter) Select(_ context.Context, question string, options []string, _ string) (string, error) {
	r, err := mp.next("select", question)
	if err != nil {
		return "", err
	}
	s, ok := r.(string)
	if !ok {
		return "", fmt.Errorf("mock response %v is not a string", r)
	}
	return s, ValidateOption(s, options)
}

// Confirm returns the next response as a bool.
func (mp *MockPrompter) Confirm(_ context.Context, question string, _ bool) (bool, error) {
	r, err := mp.next("confirm", question)
	if err != nil {
		return false, err
	}
	b, ok := r.(bool)
	if !ok {
		return false, fmt.Errorf("mock response %v is not a bool", r)
	}
	return b, nil
}

// IsInteractive reports the configured interactivity.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// Calls returns the prompts shown so far as "kind:question".
func (mp *MockPrompter) Calls() []string {
	return mp.calls
}
