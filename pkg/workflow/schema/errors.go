package schema

import "fmt"

// ValidationError locates a schema violation.
type ValidationError struct {
	// Path is a JSON path such as "$.nodes[2].type".
	Path string

	// Keyword is the schema keyword that failed (type, required, enum, ...).
	Keyword string

	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(path, keyword, message string) *ValidationError {
	return &ValidationError{Path: path, Keyword: keyword, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Path, e.Keyword, e.Message)
}

// Is matches on path and keyword.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Path == t.Path && e.Keyword == t.Keyword
}
