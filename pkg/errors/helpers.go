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

package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. It returns nil when err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. It returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is mirrors errors.Is so callers need only one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As mirrors errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// New mirrors errors.New.
func New(message string) error { return errors.New(message) }

// UserMessage returns the user-facing message and suggestion for err. It
// walks the chain for a UserVisibleError and falls back to err.Error().
func UserMessage(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var uv UserVisibleError
	if errors.As(err, &uv) && uv.IsUserVisible() {
		return uv.UserMessage(), uv.Suggestion()
	}
	return err.Error(), ""
}

// IsRetryable reports whether any ErrorClassifier in err's chain is retryable.
func IsRetryable(err error) bool {
	var c ErrorClassifier
	return errors.As(err, &c) && c.IsRetryable()
}
