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
	"github.com/dimkr/tusk/queue"
	"github.com/google/uuid"
)

var errMissingFollowID = errors.New("follow has no ID")

func (w *Workflow) follow(ctx context.Context, follower *actors.Account, follow *ap.Activity) error {
	if follow.ID == "" {
		return queue.Expected(errMissingFollowID)
	}

	targetID := follow.Object.ID()
	username, ok := actors.LocalUsername(w.Domain, targetID)
	if !ok {
		slog.InfoContext(ctx, "Ignoring follow of remote actor", "followed", targetID)
		return nil
	}

	followed, err := actors.GetLocal(ctx, w.DB, username)
	if errors.Is(err, fed.ErrNoSuchAccount) {
		return queue.Expected(err)
	} else if err != nil {
		return err
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pending bool
	if err := tx.QueryRowContext(
		ctx,
		`INSERT INTO follows(id, account_id, target_account_id, pending, uri) VALUES(?, ?, ?, ?, ?) ON CONFLICT(account_id, target_account_id) DO UPDATE SET uri = excluded.uri RETURNING pending`,
		uuid.NewString(),
		follower.ID,
		followed.ID,
		followed.Locked,
		follow.ID,
	).Scan(&pending); err != nil {
		return err
	}

	kind := notify.Follow
	if pending {
		kind = notify.FollowRequest
	}

	if err := notify.Insert(ctx, tx, followed.ID, follower.ID, kind, ""); err != nil {
		return err
	}

	if !pending {
		if err := w.respond(ctx, tx, ap.Accept, followed, follower, follow.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Received follow", "follower", follower.ActorID(w.Domain), "followed", targetID, "pending", pending)
	return nil
}

// Follow handles a Follow of a local account by a remote one.
//
// If the followed account is locked, the edge is pending until approved with [Workflow.Authorize].
// Otherwise, an Accept is queued for delivery to the follower.
func (w *Workflow) Follow(ctx context.Context, follower *actors.Account, follow *ap.Activity) error {
	if err := w.follow(ctx, follower, follow); err != nil {
		return fmt.Errorf("failed to handle follow %s by %s: %w", follow.ID, follower.ActorID(w.Domain), err)
	}

	return nil
}

// target returns the account followed by a Follow, which can be inlined or referenced by ID.
func (w *Workflow) target(ctx context.Context, follower *actors.Account, follow ap.Ref[ap.Object]) (*actors.Account, error) {
	if v, ok := follow.Value(); ok {
		inner, ok := v.(*ap.Activity)
		if !ok || inner.Type != ap.Follow {
			return nil, nil
		}

		if inner.Actor.ID() != follower.ActorID(w.Domain) {
			slog.InfoContext(ctx, "Follow was sent by another actor", "follow", inner.ID, "actor", inner.Actor.ID())
			return nil, nil
		}

		followed, err := actors.Lookup(ctx, w.DB, w.Domain, inner.Object.ID())
		if errors.Is(err, fed.ErrNoSuchAccount) {
			return nil, nil
		}
		return followed, err
	}

	id := follow.ID()
	if id == "" {
		return nil, nil
	}

	var followedID string
	if err := w.DB.QueryRowContext(ctx, `SELECT target_account_id FROM follows WHERE uri = ? AND account_id = ?`, id, follower.ID).Scan(&followedID); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return actors.GetByID(ctx, w.DB, followedID)
}

func (w *Workflow) unfollow(ctx context.Context, follower *actors.Account, follow ap.Ref[ap.Object]) error {
	followed, err := w.target(ctx, follower, follow)
	if err != nil {
		return err
	} else if followed == nil {
		slog.DebugContext(ctx, "No follow to undo", "follow", follow.ID())
		return nil
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE account_id = ? AND target_account_id = ?`, follower.ID, followed.ID)
	if err != nil {
		return err
	}

	for _, kind := range []notify.Kind{notify.Follow, notify.FollowRequest} {
		if err := notify.Remove(ctx, tx, followed.ID, follower.ID, kind, ""); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Removed follow", "follower", follower.ActorID(w.Domain), "followed", followed.ActorID(w.Domain))
	}

	return nil
}

// Unfollow removes a follow edge when its follower undoes the Follow.
//
// Undoing a Follow that doesn't exist does nothing.
func (w *Workflow) Unfollow(ctx context.Context, follower *actors.Account, follow ap.Ref[ap.Object]) error {
	if err := w.unfollow(ctx, follower, follow); err != nil {
		return fmt.Errorf("failed to undo follow %s by %s: %w", follow.ID(), follower.ActorID(w.Domain), err)
	}

	return nil
}

// followOf returns the edge approved or rejected by an Accept or a Reject, or nil if the response
// doesn't match a follow of sender by recipient.
//
// recipient is the ID of the local account that received the response, or empty if it was received
// by the shared inbox.
func (w *Workflow) followOf(ctx context.Context, sender *actors.Account, recipient string, follow ap.Ref[ap.Object]) (*Edge, error) {
	senderID := sender.ActorID(w.Domain)

	var follower *actors.Account
	if v, ok := follow.Value(); ok {
		inner, ok := v.(*ap.Activity)
		if !ok || inner.Type != ap.Follow {
			slog.InfoContext(ctx, "Response object is not a follow", "sender", senderID)
			return nil, nil
		}

		if inner.Object.ID() != senderID {
			slog.InfoContext(ctx, "Response to a follow of another actor", "sender", senderID, "followed", inner.Object.ID())
			return nil, nil
		}

		username, ok := actors.LocalUsername(w.Domain, inner.Actor.ID())
		if !ok {
			slog.InfoContext(ctx, "Response to a follow by a remote actor", "sender", senderID, "follower", inner.Actor.ID())
			return nil, nil
		}

		var err error
		if follower, err = actors.GetLocal(ctx, w.DB, username); errors.Is(err, fed.ErrNoSuchAccount) {
			slog.InfoContext(ctx, "Response to a follow by a missing account", "sender", senderID, "follower", inner.Actor.ID())
			return nil, nil
		} else if err != nil {
			return nil, err
		}
	} else {
		var followerID string
		if err := w.DB.QueryRowContext(ctx, `SELECT account_id FROM follows WHERE uri = ? AND target_account_id = ?`, follow.ID(), sender.ID).Scan(&followerID); errors.Is(err, sql.ErrNoRows) {
			slog.InfoContext(ctx, "Response to an unknown follow", "sender", senderID, "follow", follow.ID())
			return nil, nil
		} else if err != nil {
			return nil, err
		}

		var err error
		if follower, err = actors.GetByID(ctx, w.DB, followerID); err != nil {
			return nil, err
		}
	}

	if recipient != "" && follower.ID != recipient {
		slog.InfoContext(ctx, "Response was sent to another account", "sender", senderID, "follower", follower.ActorID(w.Domain), "recipient", recipient)
		return nil, nil
	}

	edge, err := Get(ctx, w.DB, follower.ID, sender.ID)
	if errors.Is(err, sql.ErrNoRows) {
		slog.InfoContext(ctx, "Response to a follow that doesn't exist", "sender", senderID, "follower", follower.ActorID(w.Domain))
		return nil, nil
	}

	return edge, err
}

// Accept marks a follow of a remote account as accepted.
//
// A response that doesn't match a follow of sender is ignored.
func (w *Workflow) Accept(ctx context.Context, sender *actors.Account, recipient string, follow ap.Ref[ap.Object]) error {
	edge, err := w.followOf(ctx, sender, recipient, follow)
	if err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", follow.ID(), err)
	} else if edge == nil {
		return nil
	}

	if _, err := w.DB.ExecContext(ctx, `UPDATE follows SET pending = 0 WHERE id = ?`, edge.ID); err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", edge.ID, err)
	}

	slog.InfoContext(ctx, "Follow accepted", "follow", edge.ID, "followed", sender.ActorID(w.Domain))
	return nil
}

// Reject removes a follow of a remote account.
//
// A response that doesn't match a follow of sender is ignored.
func (w *Workflow) Reject(ctx context.Context, sender *actors.Account, recipient string, follow ap.Ref[ap.Object]) error {
	edge, err := w.followOf(ctx, sender, recipient, follow)
	if err != nil {
		return fmt.Errorf("failed to reject follow %s: %w", follow.ID(), err)
	} else if edge == nil {
		return nil
	}

	if _, err := w.DB.ExecContext(ctx, `DELETE FROM follows WHERE id = ?`, edge.ID); err != nil {
		return fmt.Errorf("failed to reject follow %s: %w", edge.ID, err)
	}

	slog.InfoContext(ctx, "Follow rejected", "follow", edge.ID, "followed", sender.ActorID(w.Domain))
	return nil
}
