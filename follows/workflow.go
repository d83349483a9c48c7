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

// Package follows implements follow requests and their approval.
package follows

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
)

// Resolver resolves an actor ID to an account, fetching it if needed.
type Resolver interface {
	Resolve(ctx context.Context, id string, followGraph bool) (*actors.Account, error)
}

// Workflow creates, approves and removes follow edges.
type Workflow struct {
	Domain   string
	DB       *sql.DB
	Resolver Resolver
}

// Edge is a row in the follows table.
type Edge struct {
	ID              string
	AccountID       string
	TargetAccountID string
	Pending         bool
	URI             string
	Created         int64
}

// New returns a new [Workflow].
func New(domain string, db *sql.DB, resolver Resolver) *Workflow {
	return &Workflow{
		Domain:   domain,
		DB:       db,
		Resolver: resolver,
	}
}

// Get returns the edge between two accounts.
func Get(ctx context.Context, db dbx.Querier, follower, followed string) (*Edge, error) {
	edge, err := dbx.QueryOne[Edge](ctx, db, `SELECT id, account_id, target_account_id, pending, uri, created FROM follows WHERE account_id = ? AND target_account_id = ?`, follower, followed)
	if err != nil {
		return nil, fmt.Errorf("failed to get follow of %s by %s: %w", followed, follower, err)
	}

	return &edge, nil
}

func newFollow(id, follower, followed string) *ap.Activity {
	to := ap.Audience{}
	to.Add(followed)

	return &ap.Activity{
		Envelope: ap.Envelope{
			Type: ap.Follow,
			ID:   id,
			To:   to,
		},
		Actor:  ap.LinkTo[*ap.Actor](follower),
		Object: ap.LinkTo[ap.Object](followed),
	}
}

// respond queues an Accept or a Reject of a Follow, sent by the followed local account.
//
// The response ID is derived from the Follow ID, so responding twice to the same Follow queues one
// delivery.
func (w *Workflow) respond(ctx context.Context, tx *sql.Tx, t ap.Type, followed *actors.Account, follower *actors.Account, followID string) error {
	followedID := followed.ActorID(w.Domain)
	followerID := follower.ActorID(w.Domain)

	to := ap.Audience{}
	to.Add(followerID)

	var prefix string
	if t == ap.Accept {
		prefix = "accept"
	} else {
		prefix = "reject"
	}

	response := &ap.Activity{
		Envelope: ap.Envelope{
			Type: t,
			ID:   fed.DerivedID(w.Domain, prefix, followID),
			To:   to,
		},
		Actor:  ap.LinkTo[*ap.Actor](followedID),
		Object: ap.Inline[ap.Object](newFollow(followID, followerID, followedID)),
	}

	if err := fed.Deliver(ctx, tx, followed.ID, follower.Inbox, response); err != nil {
		return fmt.Errorf("failed to queue %s of %s: %w", t, followID, err)
	}

	return nil
}
