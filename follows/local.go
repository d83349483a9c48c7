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

package follows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/notify"
	"github.com/google/uuid"
)

var (
	ErrSelfFollow = errors.New("cannot follow self")
	ErrNoRequest  = errors.New("no pending follow request")
	ErrNotLocal   = errors.New("account is not local")
)

func (w *Workflow) request(ctx context.Context, follower *actors.Account, target string) error {
	if !follower.IsLocal() {
		return ErrNotLocal
	}

	followed, err := w.Resolver.Resolve(ctx, target, false)
	if err != nil {
		return err
	}

	if followed.ID == follower.ID {
		return ErrSelfFollow
	}

	followID, err := fed.NewID(w.Domain, "follow")
	if err != nil {
		return err
	}

	pending := followed.Locked || !followed.IsLocal()

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if res, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO follows(id, account_id, target_account_id, pending, uri) VALUES(?, ?, ?, ?, ?)`,
		uuid.NewString(),
		follower.ID,
		followed.ID,
		pending,
		followID,
	); err != nil {
		return err
	} else if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		slog.DebugContext(ctx, "Already following", "follower", follower.Username, "followed", target)
		return nil
	}

	if followed.IsLocal() {
		kind := notify.Follow
		if pending {
			kind = notify.FollowRequest
		}

		if err := notify.Insert(ctx, tx, followed.ID, follower.ID, kind, ""); err != nil {
			return err
		}
	} else if err := fed.Deliver(ctx, tx, follower.ID, followed.Inbox, newFollow(followID, follower.ActorID(w.Domain), followed.ActorID(w.Domain))); err != nil {
		return err
	}

	return tx.Commit()
}

// Request makes a local account follow another account.
//
// A follow of a remote account is pending until accepted, and a Follow is queued for delivery. A
// follow of a local account is pending only if the followed account is locked.
func (w *Workflow) Request(ctx context.Context, follower *actors.Account, target string) error {
	if err := w.request(ctx, follower, target); err != nil {
		return fmt.Errorf("%s failed to follow %s: %w", follower.Username, target, err)
	}

	return nil
}

func (w *Workflow) cancel(ctx context.Context, follower *actors.Account, target string) error {
	if !follower.IsLocal() {
		return ErrNotLocal
	}

	followed, err := actors.Lookup(ctx, w.DB, w.Domain, target)
	if errors.Is(err, fed.ErrNoSuchAccount) {
		return nil
	} else if err != nil {
		return err
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	edge, err := Get(ctx, tx, follower.ID, followed.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	} else if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE id = ?`, edge.ID); err != nil {
		return err
	}

	if followed.IsLocal() {
		for _, kind := range []notify.Kind{notify.Follow, notify.FollowRequest} {
			if err := notify.Remove(ctx, tx, followed.ID, follower.ID, kind, ""); err != nil {
				return err
			}
		}
	} else {
		undoID, err := fed.NewID(w.Domain, "undo")
		if err != nil {
			return err
		}

		to := ap.Audience{}
		to.Add(followed.ActorID(w.Domain))

		undo := &ap.Activity{
			Envelope: ap.Envelope{
				Type: ap.Undo,
				ID:   undoID,
				To:   to,
			},
			Actor:  ap.LinkTo[*ap.Actor](follower.ActorID(w.Domain)),
			Object: ap.Inline[ap.Object](newFollow(edge.URI, follower.ActorID(w.Domain), followed.ActorID(w.Domain))),
		}

		if err := fed.Deliver(ctx, tx, follower.ID, followed.Inbox, undo); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Cancel makes a local account stop following another account, or withdraws a follow request.
//
// If the followed account is remote, an Undo is queued for delivery.
func (w *Workflow) Cancel(ctx context.Context, follower *actors.Account, target string) error {
	if err := w.cancel(ctx, follower, target); err != nil {
		return fmt.Errorf("%s failed to unfollow %s: %w", follower.Username, target, err)
	}

	return nil
}

// decide approves or denies a pending follow request of a local account.
func (w *Workflow) decide(ctx context.Context, followed *actors.Account, followerID string, approve bool) error {
	if !followed.IsLocal() {
		return ErrNotLocal
	}

	follower, err := actors.Lookup(ctx, w.DB, w.Domain, followerID)
	if err != nil {
		return err
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `DELETE FROM follows WHERE account_id = ? AND target_account_id = ? AND pending = 1 RETURNING uri`
	if approve {
		query = `UPDATE follows SET pending = 0 WHERE account_id = ? AND target_account_id = ? AND pending = 1 RETURNING uri`
	}

	var followID string
	if err := tx.QueryRowContext(ctx, query, follower.ID, followed.ID).Scan(&followID); errors.Is(err, sql.ErrNoRows) {
		return ErrNoRequest
	} else if err != nil {
		return err
	}

	if err := notify.Remove(ctx, tx, followed.ID, follower.ID, notify.FollowRequest, ""); err != nil {
		return err
	}

	if approve {
		if err := notify.Insert(ctx, tx, followed.ID, follower.ID, notify.Follow, ""); err != nil {
			return err
		}
	}

	if !follower.IsLocal() && followID != "" {
		t := ap.Reject
		if approve {
			t = ap.Accept
		}

		if err := w.respond(ctx, tx, t, followed, follower, followID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Authorize approves a pending follow request of a local account.
//
// If the follower is remote, an Accept is queued for delivery.
func (w *Workflow) Authorize(ctx context.Context, followed *actors.Account, follower string) error {
	if err := w.decide(ctx, followed, follower, true); err != nil {
		return fmt.Errorf("%s failed to approve follow by %s: %w", followed.Username, follower, err)
	}

	return nil
}

// Deny rejects a pending follow request of a local account.
//
// If the follower is remote, a Reject is queued for delivery.
func (w *Workflow) Deny(ctx context.Context, followed *actors.Account, follower string) error {
	if err := w.decide(ctx, followed, follower, false); err != nil {
		return fmt.Errorf("%s failed to reject follow by %s: %w", followed.Username, follower, err)
	}

	return nil
}
