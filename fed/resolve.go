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

package fed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/httpsig"
	"github.com/dimkr/tusk/queue"
)

// Resolver fetches remote objects.
type Resolver struct {
	Config    *cfg.Config
	Client    Client
	BlockList *BlockList

	// Key signs requests if not nil.
	Key *httpsig.Key

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// StatusError is returned when a server responds with an unexpected status code.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrResponseTooBig  = errors.New("response is too big")
	ErrWrongType       = errors.New("unexpected object type")
	ErrIDMismatch      = errors.New("object ID does not match its URL")
	ErrTooManyRequests = errors.New("too many requests")
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrTooManyRequests
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewResolver returns a new [Resolver].
func NewResolver(config *cfg.Config, client Client, blockList *BlockList) *Resolver {
	return &Resolver{
		Config:    config,
		Client:    client,
		BlockList: blockList,
		sleep:     sleep,
		now:       time.Now,
	}
}

func (r *Resolver) validate(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	if r.BlockList.Contains(u.Hostname()) {
		return nil, fmt.Errorf("cannot fetch %s: %w", rawURL, ErrBlockedDomain)
	}

	return u, nil
}

// parseRetryAfter parses the value of a Retry-After header, in seconds or as a date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	if sec, err := strconv.ParseUint(value, 10, 32); err == nil {
		return time.Duration(sec) * time.Second, true
	}

	if t, err := http.ParseTime(value); err == nil {
		return max(t.Sub(now), 0), true
	}

	return 0, false
}

// Get fetches a URL and returns the response body and its content type.
//
// HTTP 429 responses are retried up to ResolverMaxAttempts times, honoring Retry-After up to
// MaxRetryAfter. All other errors are permanent.
func (r *Resolver) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := r.validate(rawURL)
	if err != nil {
		return nil, "", err
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
		}

		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Accept", ap.ContentType+", "+ap.ActivityContentType)

		if r.Key != nil {
			if err := httpsig.Sign(req, *r.Key, r.now()); err != nil {
				return nil, "", fmt.Errorf("failed to sign request for %s: %w", rawURL, err)
			}
		}

		resp, err := r.Client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), r.now())
			if !ok {
				delay = r.Config.ResolverRetryBase << (attempt - 1)
			}
			delay = min(delay, r.Config.MaxRetryAfter)

			if attempt >= r.Config.ResolverMaxAttempts {
				return nil, "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode, RetryAfter: delay}
			}

			slog.DebugContext(ctx, "Retrying rate-limited request", "url", rawURL, "attempt", attempt, "delay", delay)

			if err := r.sleep(ctx, delay); err != nil {
				return nil, "", err
			}

			continue
		}

		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}

		if resp.ContentLength > r.Config.MaxResponseBodySize {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, ErrResponseTooBig)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, r.Config.MaxResponseBodySize+1))
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
		}

		if int64(len(body)) > r.Config.MaxResponseBodySize {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, ErrResponseTooBig)
		}

		return body, resp.Header.Get("Content-Type"), nil
	}
}

// Fetch fetches an object and checks its type.
//
// The object must have the same host as its URL, if it has an ID.
func Fetch[T ap.Object](ctx context.Context, r *Resolver, id string) (T, error) {
	var zero T

	body, contentType, err := r.Get(ctx, id)
	if err != nil {
		return zero, err
	}

	o, err := ap.Parse(body, contentType)
	if err != nil {
		return zero, fmt.Errorf("failed to parse %s: %w", id, err)
	}

	if fetchedID := o.Common().ID; fetchedID != "" && fetchedID != id {
		u, err := url.Parse(id)
		if err != nil {
			return zero, err
		}

		fetched, err := url.Parse(fetchedID)
		if err != nil {
			return zero, fmt.Errorf("%w: %s", ErrIDMismatch, fetchedID)
		}

		if fetched.Host != u.Host {
			return zero, fmt.Errorf("%w: %s is %s", ErrIDMismatch, id, fetchedID)
		}
	}

	v, ok := any(o).(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %s", ErrWrongType, id, o.Common().Type)
	}

	return v, nil
}

// Resolve returns the value of a reference.
//
// If the value is inlined, Resolve returns it without fetching anything. Otherwise, it fetches
// the referenced object. Failure is logged and reported as false.
func Resolve[T ap.Object](ctx context.Context, r *Resolver, ref ap.Ref[T]) (T, bool) {
	if v, ok := ref.Value(); ok {
		return v, true
	}

	var zero T

	id := ref.ID()
	if id == "" {
		return zero, false
	}

	v, err := Fetch[T](ctx, r, id)
	if err != nil {
		slog.InfoContext(ctx, "Failed to resolve object", "id", id, "error", err)
		return zero, false
	}

	return v, true
}

// JobError classifies an error returned by [Resolver.Get], [Fetch] or [Deliverer.Deliver] for the
// job queue.
//
// Rate limiting is transient, while errors caused by the remote server or its response fail the job
// without retry. Network errors are left as-is and retried with backoff.
func JobError(err error) error {
	if err == nil {
		return nil
	}

	if queue.IsExpected(err) {
		return err
	}

	if _, ok := queue.RetryAfter(err); ok {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return queue.Transient(err, statusErr.RetryAfter)
		}
		return queue.Expected(err)
	}

	for _, expected := range []error{
		ErrInvalidURL,
		ErrBlockedDomain,
		ErrResponseTooBig,
		ErrWrongType,
		ErrIDMismatch,
		ap.ErrNotObject,
		ap.ErrMissingType,
		ap.ErrUnknownType,
		ap.ErrMissingContext,
	} {
		if errors.Is(err, expected) {
			return queue.Expected(err)
		}
	}

	return err
}
