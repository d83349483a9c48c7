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

package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/notify"
	"github.com/dimkr/tusk/queue"
	"github.com/dimkr/tusk/text/plain"
	"github.com/google/uuid"
)

func sameHost(a, b string) bool {
	u, err := url.Parse(a)
	if err != nil || u.Host == "" {
		return false
	}

	v, err := url.Parse(b)
	return err == nil && u.Host == v.Host
}

func (f *Federation) upsert(ctx context.Context, author *actors.Account, o *ap.Content) error {
	authorID := author.ActorID(f.Domain)

	if author.IsLocal() {
		return queue.Expected(fmt.Errorf("%w: %s is local", ErrForged, o.ID))
	}

	if o.AttributedTo.ID() != authorID {
		return queue.Expected(fmt.Errorf("%w: %s is attributed to %s", ErrForged, o.ID, o.AttributedTo.ID()))
	}

	if !sameHost(o.ID, authorID) {
		return queue.Expected(fmt.Errorf("%w: %s is not on the host of %s", ErrForged, o.ID, authorID))
	}

	existing, err := GetByURI(ctx, f.DB, o.ID)
	if errors.Is(err, ErrNoSuchStatus) {
		existing = nil
	} else if err != nil {
		return err
	} else if existing.Local || existing.AccountID != author.ID || existing.ReblogOfID != "" {
		slog.InfoContext(ctx, "Refusing to overwrite status", "status", o.ID, "local", existing.Local, "owner", existing.AccountID)
		return nil
	}

	// may fetch actors
	audiences := f.audiences(ctx, &o.Envelope, author)
	v := visibility(&o.Envelope, author.FollowersURL)

	text, _ := plain.FromHTML(o.Content)

	now := time.Now().Unix()
	created := now
	if !o.Published.IsZero() {
		created = o.Published.Unix()
	} else if existing != nil {
		created = existing.Created
	}

	updated := created
	if !o.Updated.IsZero() {
		updated = o.Updated.Unix()
	} else if existing != nil {
		updated = now
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var statusID string
	if err := tx.QueryRowContext(
		ctx,
		`INSERT INTO statuses(id, uri, url, account_id, in_reply_to_uri, content, text, summary, sensitive, visibility, created, updated) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(uri) DO UPDATE SET url = excluded.url, in_reply_to_uri = excluded.in_reply_to_uri, content = excluded.content, text = excluded.text, summary = excluded.summary, sensitive = excluded.sensitive, visibility = excluded.visibility, updated = excluded.updated WHERE statuses.local = 0 AND statuses.account_id = excluded.account_id RETURNING id`,
		uuid.NewString(),
		o.ID,
		o.CanonicalURL(),
		author.ID,
		o.InReplyTo.ID(),
		o.Content,
		text,
		o.Summary,
		o.Sensitive,
		v,
		created,
		updated,
	).Scan(&statusID); errors.Is(err, sql.ErrNoRows) {
		slog.InfoContext(ctx, "Status was not updated", "status", o.ID)
		return nil
	} else if err != nil {
		return err
	}

	if err := replaceAudiences(ctx, tx, statusID, audiences); err != nil {
		return err
	}

	if existing == nil {
		if err := fanOut(ctx, tx, statusID, v, audiences); err != nil {
			return err
		}
	}

	if err := f.notifyMentions(ctx, tx, o, author.ID, statusID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Stored status", "status", o.ID, "new", existing == nil, "visibility", v, "audiences", len(audiences))
	return nil
}

// notifyMentions notifies local accounts mentioned in a status, and the author of the status it
// replies to.
func (f *Federation) notifyMentions(ctx context.Context, tx *sql.Tx, o *ap.Content, authorID, statusID string) error {
	for _, ref := range o.Tag {
		v, ok := ref.Value()
		if !ok {
			continue
		}

		mention, ok := v.(*ap.Link)
		if !ok || mention.Type != ap.Mention {
			continue
		}

		username, ok := actors.LocalUsername(f.Domain, mention.Href)
		if !ok {
			continue
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO notifications(id, account_id, from_account_id, kind, status_id) SELECT ?, id, ?, ?, ? FROM accounts WHERE username = ? AND uri IS NULL AND id != ?`,
			uuid.NewString(),
			authorID,
			notify.Mention,
			statusID,
			username,
			authorID,
		); err != nil {
			return fmt.Errorf("failed to notify %s of mention: %w", username, err)
		}
	}

	if inReplyTo := o.InReplyTo.ID(); inReplyTo != "" {
		var parentAuthor string
		if err := tx.QueryRowContext(ctx, `SELECT account_id FROM statuses WHERE uri = ? AND local = 1`, inReplyTo).Scan(&parentAuthor); err == nil {
			if err := notify.Insert(ctx, tx, parentAuthor, authorID, notify.Mention, statusID); err != nil {
				return err
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	return nil
}

// Upsert stores a new status received from its author, or updates an existing one.
//
// Statuses created by local accounts are never overwritten. A new status is added to the home
// timelines of local recipients, but an edited one is not.
func (f *Federation) Upsert(ctx context.Context, author *actors.Account, o *ap.Content) error {
	if err := f.upsert(ctx, author, o); err != nil {
		return fmt.Errorf("failed to store %s by %s: %w", o.ID, author.ActorID(f.Domain), err)
	}

	return nil
}

// Remove deletes a status when its author deletes it.
//
// Deleting a status that doesn't exist does nothing.
func (f *Federation) Remove(ctx context.Context, author *actors.Account, object ap.Ref[ap.Object]) error {
	id := object.ID()

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	defer tx.Rollback()

	var statusID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM statuses WHERE uri = ? AND account_id = ? AND local = 0 AND reblog_of_id = ''`, id, author.ID).Scan(&statusID); errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "No status to delete", "status", id)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	if err := removeRows(ctx, tx, statusID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Deleted status", "status", id)
	return nil
}

// boosted returns the stored copy of a boosted status, fetching it if needed.
//
// A fetched status is stored only if its author can be resolved.
func (f *Federation) boosted(ctx context.Context, id string) (*Status, error) {
	if s, err := GetByURI(ctx, f.DB, id); err == nil {
		return s, nil
	} else if !errors.Is(err, ErrNoSuchStatus) {
		return nil, err
	}

	// the inlined copy sent by the booster is not trusted
	o, err := fed.Fetch[*ap.Content](ctx, f.Objects, id)
	if err != nil {
		return nil, fed.JobError(err)
	}

	if o.ID != id {
		return nil, queue.Expected(fmt.Errorf("%w: %s is %s", fed.ErrIDMismatch, id, o.ID))
	}

	author, err := f.Accounts.Resolve(ctx, o.AttributedTo.ID(), false)
	if err != nil {
		return nil, fed.JobError(err)
	}

	if err := f.Upsert(ctx, author, o); err != nil {
		return nil, err
	}

	return GetByURI(ctx, f.DB, id)
}

func (f *Federation) boost(ctx context.Context, booster *actors.Account, announce *ap.Activity) error {
	if announce.ID == "" {
		return queue.Expected(errors.New("announce has no ID"))
	}

	original, err := f.boosted(ctx, announce.Object.ID())
	if errors.Is(err, ErrNoSuchStatus) {
		return queue.Expected(err)
	} else if err != nil {
		return err
	}

	if original.Visibility != Public && original.Visibility != Unlisted {
		slog.InfoContext(ctx, "Ignoring boost of non-public status", "status", original.URI, "visibility", original.Visibility)
		return nil
	}

	audiences := f.audiences(ctx, &announce.Envelope, booster)
	v := visibility(&announce.Envelope, booster.FollowersURL)

	created := time.Now().Unix()
	if !announce.Published.IsZero() {
		created = announce.Published.Unix()
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statusID := uuid.NewString()
	if res, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO statuses(id, uri, account_id, reblog_of_id, visibility, created, updated) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		statusID,
		announce.ID,
		booster.ID,
		original.ID,
		v,
		created,
		created,
	); err != nil {
		return err
	} else if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		slog.DebugContext(ctx, "Boost already exists", "announce", announce.ID)
		return nil
	}

	if err := replaceAudiences(ctx, tx, statusID, audiences); err != nil {
		return err
	}

	if err := fanOut(ctx, tx, statusID, v, audiences); err != nil {
		return err
	}

	if err := notify.Insert(ctx, tx, original.AccountID, booster.ID, notify.Reblog, original.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// Boosted stores a boost of a status by a remote account.
func (f *Federation) Boosted(ctx context.Context, booster *actors.Account, announce *ap.Activity) error {
	if err := f.boost(ctx, booster, announce); err != nil {
		return fmt.Errorf("failed to store boost %s by %s: %w", announce.ID, booster.ActorID(f.Domain), err)
	}

	return nil
}

// Unboosted removes a boost of a status by a remote account.
//
// announce can be the Announce activity or its ID.
func (f *Federation) Unboosted(ctx context.Context, booster *actors.Account, announce ap.Ref[ap.Object]) error {
	id := announce.ID()

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to remove boost %s: %w", id, err)
	}
	defer tx.Rollback()

	var statusID, originalID string
	if err := tx.QueryRowContext(ctx, `SELECT id, reblog_of_id FROM statuses WHERE uri = ? AND account_id = ? AND reblog_of_id != ''`, id, booster.ID).Scan(&statusID, &originalID); errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "No boost to remove", "announce", id)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to remove boost %s: %w", id, err)
	}

	if err := removeRows(ctx, tx, statusID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE from_account_id = ? AND kind = ? AND status_id = ?`, booster.ID, notify.Reblog, originalID); err != nil {
		return fmt.Errorf("failed to remove boost %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to remove boost %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Removed boost", "announce", id)
	return nil
}

// Liked stores a like of a known status by a remote account.
//
// Likes of unknown statuses are ignored.
func (f *Federation) Liked(ctx context.Context, liker *actors.Account, like *ap.Activity) error {
	s, err := GetByURI(ctx, f.DB, like.Object.ID())
	if errors.Is(err, ErrNoSuchStatus) {
		slog.DebugContext(ctx, "Ignoring like of unknown status", "status", like.Object.ID())
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to store like %s: %w", like.ID, err)
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to store like %s: %w", like.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO favourites(account_id, status_id, uri) VALUES(?, ?, ?) ON CONFLICT(account_id, status_id) DO UPDATE SET uri = excluded.uri`, liker.ID, s.ID, like.ID); err != nil {
		return fmt.Errorf("failed to store like %s: %w", like.ID, err)
	}

	if err := notify.Insert(ctx, tx, s.AccountID, liker.ID, notify.Favourite, s.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to store like %s: %w", like.ID, err)
	}

	return nil
}

// Unliked removes a like by a remote account.
//
// like can be the Like activity or its ID.
func (f *Federation) Unliked(ctx context.Context, liker *actors.Account, like ap.Ref[ap.Object]) error {
	query := `DELETE FROM favourites WHERE account_id = ? AND uri = ? RETURNING status_id`
	arg := like.ID()
	if v, ok := like.Value(); ok {
		if inner, ok := v.(*ap.Activity); ok && inner.ID == "" {
			query = `DELETE FROM favourites WHERE account_id = ? AND status_id = (SELECT id FROM statuses WHERE uri = ?) RETURNING status_id`
			arg = inner.Object.ID()
		}
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to remove like %s: %w", arg, err)
	}
	defer tx.Rollback()

	var statusID string
	if err := tx.QueryRowContext(ctx, query, liker.ID, arg).Scan(&statusID); errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "No like to remove", "like", arg)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to remove like %s: %w", arg, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE from_account_id = ? AND kind = ? AND status_id = ?`, liker.ID, notify.Favourite, statusID); err != nil {
		return fmt.Errorf("failed to remove like %s: %w", arg, err)
	}

	return tx.Commit()
}
