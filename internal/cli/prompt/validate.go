package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength bounds a single chat message typed at the prompt.
const MaxMessageLength = 32 * 1024

// ValidationError describes rejected input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateMessage rejects blank, oversized or non-UTF-8 messages.
func ValidateMessage(input string) error {
	if strings.TrimSpace(input) == "" {
		return &ValidationError{Reason: "message cannot be empty"}
	}
	if !utf8.ValidString(input) {
		return &ValidationError{Reason: "message must be valid UTF-8"}
	}
	if len(input) > MaxMessageLength {
		return &ValidationError{Reason: fmt.Sprintf("message exceeds %d bytes", MaxMessageLength)}
	}
	return nil
}

// ValidateOption checks that input is one of options.
func ValidateOption(input string, options []string) error {
	for _, opt := range options {
		if opt == input {
			return nil
		}
	}
	return &ValidationError{Reason: fmt.Sprintf("%q is not one of: %s", input, strings.Join(options, ", "))}
}
