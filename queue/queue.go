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

// Package queue implements a persistent job queue with at-least-once execution.
//
// Jobs are stored in the jobs table together with the data written by the code that enqueues
// them, so enqueueing a job can be part of a bigger transaction. Each job is claimed for a
// limited time by a worker, then deleted if successful or rescheduled with exponential backoff.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/logcontext"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

// Queue runs queued jobs using registered handlers.
type Queue struct {
	Config *cfg.Config
	DB     *sql.DB

	handlers map[string]func(context.Context, []byte) error
	now      func() time.Time
}

type job struct {
	ID       int64
	Kind     string
	Payload  []byte
	Attempts int
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

var errUnknownKind = errors.New("no handler")

func init() {
	var err error

	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}

	if decMode, err = (cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}).DecMode(); err != nil {
		panic(err)
	}
}

// New creates a new [Queue].
func New(config *cfg.Config, db *sql.DB) *Queue {
	return &Queue{
		Config:   config,
		DB:       db,
		handlers: map[string]func(context.Context, []byte) error{},
		now:      time.Now,
	}
}

// Handle registers the handler of a job kind. It must not be called after [Queue.Run].
func Handle[T any](q *Queue, kind string, f func(context.Context, *T) error) {
	q.handlers[kind] = func(ctx context.Context, payload []byte) error {
		var v T
		if err := decMode.Unmarshal(payload, &v); err != nil {
			return Expected(fmt.Errorf("failed to decode %s job: %w", kind, err))
		}

		return f(ctx, &v)
	}
}

// Enqueue adds a job to the queue.
//
// If dedup is not empty and a job with the same dedup key is already queued, Enqueue does nothing.
// If that job has failed, it is queued again with the new payload.
// db can be a transaction, in which case the job runs only if the transaction is committed.
func Enqueue(ctx context.Context, db dbx.Execer, kind, dedup string, payload any) error {
	buf, err := encMode.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s job: %w", kind, err)
	}

	var key sql.NullString
	if dedup != "" {
		key = sql.NullString{String: dedup, Valid: true}
	}

	if _, err := db.ExecContext(
		ctx,
		`INSERT INTO jobs(kind, dedup, payload) VALUES(?, ?, ?) ON CONFLICT(dedup) DO UPDATE SET kind = excluded.kind, payload = excluded.payload, attempts = 0, run_after = UNIXEPOCH(), locked_until = 0, last_error = '', failed = 0 WHERE jobs.failed = 1`,
		kind,
		key,
		buf,
	); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}

	return nil
}

func (q *Queue) backoff(attempts int) time.Duration {
	delay := q.Config.JobBackoffBase
	for i := 1; i < attempts && delay < q.Config.JobMaxBackoff; i++ {
		delay *= 2
	}

	return max(min(delay, q.Config.JobMaxBackoff), q.Config.JobBackoffFloor)
}

func (q *Queue) run(ctx context.Context, j job) (err error) {
	handler, ok := q.handlers[j.Kind]
	if !ok {
		return Expected(fmt.Errorf("%w for %s", errUnknownKind, j.Kind))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return handler(ctx, j.Payload)
}

func (q *Queue) complete(ctx context.Context, j job, err error) error {
	if err == nil {
		slog.DebugContext(ctx, "Job succeeded")
		_, err := q.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	}

	if IsExpected(err) {
		slog.WarnContext(ctx, "Job failed", "error", err)
		_, err := q.DB.ExecContext(ctx, `UPDATE jobs SET failed = 1, locked_until = 0, last_error = ? WHERE id = ?`, err.Error(), j.ID)
		return err
	}

	if j.Attempts >= q.Config.JobMaxAttempts {
		slog.WarnContext(ctx, "Job failed permanently", "attempts", j.Attempts, "error", err)
		_, err := q.DB.ExecContext(ctx, `UPDATE jobs SET failed = 1, locked_until = 0, last_error = ? WHERE id = ?`, err.Error(), j.ID)
		return err
	}

	delay := q.backoff(j.Attempts)
	if after, ok := RetryAfter(err); ok && after > delay {
		delay = after
	}

	slog.InfoContext(ctx, "Job will be retried", "attempts", j.Attempts, "delay", delay, "error", err)

	_, err = q.DB.ExecContext(
		ctx,
		`UPDATE jobs SET run_after = ?, locked_until = 0, last_error = ? WHERE id = ?`,
		q.now().Add(delay).Unix(),
		err.Error(),
		j.ID,
	)
	return err
}

// RunOnce claims a batch of jobs that are due, runs them and returns the number of jobs claimed.
func (q *Queue) RunOnce(ctx context.Context) (int, error) {
	now := q.now()

	jobs, err := dbx.QueryCollectCount[job](
		ctx,
		q.DB,
		q.Config.QueueBatchSize,
		`UPDATE jobs SET locked_until = ?, attempts = attempts + 1 WHERE id IN (SELECT id FROM jobs WHERE failed = 0 AND run_after <= ? AND locked_until <= ? ORDER BY run_after, id LIMIT ?) RETURNING id, kind, payload, attempts`,
		now.Add(q.Config.JobLease).Unix(),
		now.Unix(),
		now.Unix(),
		q.Config.QueueBatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to claim jobs: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(q.Config.QueueWorkers)

	for _, j := range jobs {
		g.Go(func() error {
			ctx := logcontext.Add(ctx, "job", j.ID, "kind", j.Kind, "attempt", j.Attempts)

			if err := q.complete(ctx, j, q.run(ctx, j)); err != nil {
				slog.WarnContext(ctx, "Failed to update job", "error", err)
			}

			return nil
		})
	}

	g.Wait()

	return len(jobs), nil
}

// Run runs jobs until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	t := time.NewTicker(q.Config.QueuePollInterval)
	defer t.Stop()

	for {
		n, err := q.RunOnce(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Failed to run jobs", "error", err)
		} else if n == q.Config.QueueBatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-t.C:
		}
	}
}
