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

package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures clients built by New.
type Config struct {
	// Timeout bounds a whole request including retries. Default: 30s.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int

	// RetryBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	UserAgent string

	// RetryPOST enables retries for non-idempotent methods. Model providers
	// turn this on since a failed completion has no side effects.
	RetryPOST bool

	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a 30s timeout with three retries.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
		MaxBackoff:    10 * time.Second,
		UserAgent:     "chatflow/1.0",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry backoff must be > 0 when retries are enabled")
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max backoff (%v) must be >= retry backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0, got %v", c.RateLimit)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent is required")
	}
	return nil
}
