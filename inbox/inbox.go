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

// Package inbox authenticates and processes activities received from other servers.
//
// Incoming activities are received and queued by [fed.Listener].
package inbox

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/data"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/follows"
	"github.com/dimkr/tusk/httpsig"
	"github.com/dimkr/tusk/logcontext"
	"github.com/dimkr/tusk/queue"
	"github.com/dimkr/tusk/status"
)

// Actors resolves and updates cached actors.
type Actors interface {
	Resolve(ctx context.Context, id string, followGraph bool) (*actors.Account, error)
	Sync(ctx context.Context, actor *ap.Actor, isNew, followGraph bool) (*actors.Account, error)
}

// Dispatcher processes queued activities.
type Dispatcher struct {
	Domain   string
	Config   *cfg.Config
	DB       *sql.DB
	Actors   Actors
	Follows  *follows.Workflow
	Statuses *status.Federation

	// Resolver fetches statuses that are not inlined in a Create.
	Resolver *fed.Resolver

	now func() time.Time
}

// New returns a new [Dispatcher].
func New(domain string, config *cfg.Config, db *sql.DB, accounts Actors, workflow *follows.Workflow, statuses *status.Federation, resolver *fed.Resolver) *Dispatcher {
	return &Dispatcher{
		Domain:   domain,
		Config:   config,
		DB:       db,
		Actors:   accounts,
		Follows:  workflow,
		Statuses: statuses,
		Resolver: resolver,
		now:      time.Now,
	}
}

// verify checks that an activity is signed by one of the keys of its sender.
func (d *Dispatcher) verify(ctx context.Context, job *fed.Incoming, sender *actors.Account) bool {
	var key struct {
		AccountID string
		PEM       string
	}
	if err := d.DB.QueryRowContext(ctx, `SELECT account_id, pem FROM public_keys WHERE key_id = ?`, job.KeyID).Scan(&key.AccountID, &key.PEM); errors.Is(err, sql.ErrNoRows) {
		slog.InfoContext(ctx, "Dropping activity signed with unknown key", "key", job.KeyID)
		return false
	} else if err != nil {
		slog.WarnContext(ctx, "Failed to look up key", "key", job.KeyID, "error", err)
		return false
	}

	if key.AccountID != sender.ID {
		slog.InfoContext(ctx, "Dropping activity signed by another actor", "key", job.KeyID)
		return false
	}

	publicKey, err := data.ParsePublicKey(key.PEM)
	if err != nil {
		slog.WarnContext(ctx, "Failed to parse key", "key", job.KeyID, "error", err)
		return false
	}

	sig := httpsig.Signature{
		Params: httpsig.Params{
			KeyID:     job.KeyID,
			Algorithm: httpsig.Algorithm(job.Algorithm),
			Signature: job.Signature,
			Expires:   job.Expires,
		},
		Signed: job.Signed,
	}
	if job.Date > 0 {
		sig.Date = time.Unix(job.Date, 0)
	}

	if !sig.Fresh(d.now(), d.Config.MaxRequestAge) {
		slog.InfoContext(ctx, "Dropping activity with stale signature", "key", job.KeyID, "date", sig.Date)
		return false
	}

	if !sig.Verify(publicKey) {
		slog.InfoContext(ctx, "Dropping activity with invalid signature", "key", job.KeyID)
		return false
	}

	return true
}

// Handle authenticates a queued activity and applies it.
//
// Activities that fail authentication are dropped and logged, but never returned as errors.
func (d *Dispatcher) Handle(ctx context.Context, job *fed.Incoming) error {
	if job.Recipient != "" {
		ctx = logcontext.Add(ctx, "recipient", job.Recipient)
	}

	o, err := ap.Parse(job.Activity, ap.ActivityContentType)
	if err != nil {
		return queue.Expected(err)
	}

	activity, ok := o.(*ap.Activity)
	if !ok {
		slog.InfoContext(ctx, "Dropping object that is not an activity", "type", o.Common().Type)
		return nil
	}

	ctx = logcontext.Add(ctx, "activity", activity.ID, "type", activity.Type)

	actorID := activity.Actor.ID()
	if actorID == "" {
		slog.InfoContext(ctx, "Dropping activity without actor")
		return nil
	}

	ctx = logcontext.Add(ctx, "sender", actorID)

	sender, err := d.Actors.Resolve(ctx, actorID, true)
	if err != nil {
		return fed.JobError(err)
	}

	if sender.IsLocal() {
		slog.InfoContext(ctx, "Dropping activity by local actor")
		return nil
	}

	if !d.verify(ctx, job, sender) {
		return nil
	}

	return d.route(ctx, job, sender, activity)
}
