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

package actors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/queue"
)

// RefreshJob is the job kind of a [Refresh].
const RefreshJob = "refresh_account"

// Refresh is a queued refresh of a cached remote actor.
type Refresh struct {
	URI string
}

// Resolve returns the account of an actor ID.
//
// Local actors are looked up by user name. Remote actors are served from the cache unless the cached
// copy is older than ActorTTL, in which case they are fetched again: if this fails, the stale copy
// is returned.
func (s *Syncer) Resolve(ctx context.Context, id string, followGraph bool) (*Account, error) {
	if username, ok := LocalUsername(s.Domain, id); ok {
		return GetLocal(ctx, s.DB, username)
	}

	cached, err := GetByURI(ctx, s.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		cached = nil
	} else if err != nil {
		return nil, err
	} else if s.now().Sub(time.Unix(cached.Fetched, 0)) < s.Config.ActorTTL {
		slog.DebugContext(ctx, "Resolved actor using cache", "id", id)
		return cached, nil
	}

	actor, err := fed.Fetch[*ap.Actor](ctx, s.Resolver, id)
	if err != nil && cached != nil {
		slog.InfoContext(ctx, "Failed to update cached actor", "id", id, "error", err)
		return cached, nil
	} else if err != nil {
		return nil, err
	}

	if actor.ID != id {
		return nil, fmt.Errorf("%w: %s is %s", fed.ErrIDMismatch, id, actor.ID)
	}

	return s.Sync(ctx, actor, cached == nil, followGraph)
}

// Lookup returns the account of an actor ID without fetching anything.
//
// If the actor is unknown, Lookup returns [fed.ErrNoSuchAccount].
func Lookup(ctx context.Context, db dbx.Querier, domain, id string) (*Account, error) {
	if username, ok := LocalUsername(domain, id); ok {
		return GetLocal(ctx, db, username)
	}

	account, err := GetByURI(ctx, db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", fed.ErrNoSuchAccount, id)
	}

	return account, err
}

// Refresh fetches a remote actor again and updates its cached copy, including its follow graph.
func (s *Syncer) Refresh(ctx context.Context, job *Refresh) error {
	actor, err := fed.Fetch[*ap.Actor](ctx, s.Resolver, job.URI)
	if err != nil {
		return fed.JobError(err)
	}

	if actor.ID != job.URI {
		return queue.Expected(fmt.Errorf("%w: %s is %s", fed.ErrIDMismatch, job.URI, actor.ID))
	}

	if _, err := s.Sync(ctx, actor, false, true); errors.Is(err, ErrInvalidActor) || errors.Is(err, ErrLocalAccount) {
		return queue.Expected(err)
	} else if err != nil {
		return err
	}

	return nil
}

// RefreshAll queues a refresh of every cached remote actor and returns the number of queued jobs.
func RefreshAll(ctx context.Context, db *sql.DB) (int, error) {
	uris, err := dbx.QueryCollect[string](ctx, db, `SELECT uri FROM accounts WHERE uri IS NOT NULL ORDER BY fetched`)
	if err != nil {
		return 0, fmt.Errorf("failed to list actors: %w", err)
	}

	for _, uri := range uris {
		if err := queue.Enqueue(ctx, db, RefreshJob, RefreshJob+" "+uri, Refresh{URI: uri}); err != nil {
			return 0, err
		}
	}

	return len(uris), nil
}
