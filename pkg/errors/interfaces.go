package errors

// UserVisibleError is implemented by errors that carry a message fit for
// display in the CLI or an API response.
type UserVisibleError interface {
	error
	IsUserVisible() bool
	UserMessage() string
	Suggestion() string
}

// ErrorClassifier is implemented by errors that can be bucketed for retry
// decisions and metrics.
type ErrorClassifier interface {
	error
	ErrorType() string
	IsRetryable() bool
}
