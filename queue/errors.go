/*
Copyright 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"errors"
	"time"
)

type expectedError struct {
	err error
}

func (e expectedError) Error() string {
	return e.err.Error()
}

func (e expectedError) Unwrap() error {
	return e.err
}

type transientError struct {
	err   error
	after time.Duration
}

func (e transientError) Error() string {
	return e.err.Error()
}

func (e transientError) Unwrap() error {
	return e.err
}

// Expected wraps a domain error: a job that fails with such an error is failed without retry.
func Expected(err error) error {
	if err == nil {
		return nil
	}
	return expectedError{err}
}

// Transient wraps an error caused by a temporary condition, like rate limiting: the job is
// retried, not before after passes.
func Transient(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return transientError{err: err, after: after}
}

// IsExpected determines whether an error was wrapped with [Expected].
func IsExpected(err error) bool {
	var expected expectedError
	return errors.As(err, &expected)
}

// RetryAfter returns the minimum delay passed to [Transient], if err was wrapped with it.
func RetryAfter(err error) (time.Duration, bool) {
	var transient transientError
	if errors.As(err, &transient) {
		return transient.after, true
	}
	return 0, false
}
