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
	"time"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/notify"
	"github.com/dimkr/tusk/text/plain"
	"github.com/google/uuid"
)

var (
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrNotPublic         = errors.New("status is not public")
)

// Post is a new status written by a local account.
type Post struct {
	Text       string
	Summary    string
	Sensitive  bool
	Visibility Visibility

	// InReplyTo is the ID of a known status.
	InReplyTo string

	// Mentions are the IDs of mentioned actors.
	Mentions []string
}

func (f *Federation) mention(a *actors.Account) *ap.Link {
	host := a.Domain
	if host == "" {
		host = f.Domain
	}

	return &ap.Link{
		Envelope: ap.Envelope{
			Type: ap.Mention,
			Name: "@" + a.Username + "@" + host,
		},
		Href: a.ActorID(f.Domain),
	}
}

// deliverTo queues the delivery of an activity to remote followers of a local account and to remote
// recipients.
func deliverTo(ctx context.Context, tx *sql.Tx, sender *actors.Account, activity ap.Object, followers bool, recipients []*actors.Account) error {
	if followers {
		if err := fed.DeliverToFollowers(ctx, tx, sender.ID, activity); err != nil {
			return err
		}
	}

	for _, r := range recipients {
		if r.IsLocal() {
			continue
		}

		if err := fed.Deliver(ctx, tx, sender.ID, inbox(r), activity); err != nil {
			return err
		}
	}

	return nil
}

func (f *Federation) create(ctx context.Context, author *actors.Account, post Post) (*Status, error) {
	if !author.IsLocal() {
		return nil, ErrNotLocal
	}

	v := post.Visibility
	if v == "" {
		v = Public
	}

	authorID := author.ActorID(f.Domain)

	var mentioned []*actors.Account
	seen := map[string]struct{}{authorID: {}}

	if post.InReplyTo != "" {
		parent, err := GetByURI(ctx, f.DB, post.InReplyTo)
		if err != nil {
			return nil, err
		}

		parentAuthor, err := actors.GetByID(ctx, f.DB, parent.AccountID)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[parentAuthor.ActorID(f.Domain)]; !dup {
			seen[parentAuthor.ActorID(f.Domain)] = struct{}{}
			mentioned = append(mentioned, parentAuthor)
		}
	}

	for _, id := range post.Mentions {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		a, err := f.Accounts.Resolve(ctx, id, false)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
		}

		mentioned = append(mentioned, a)
	}

	var to, cc ap.Audience
	switch v {
	case Public:
		to.Add(ap.Public)
		cc.Add(author.FollowersURL)
	case Unlisted:
		to.Add(author.FollowersURL)
		cc.Add(ap.Public)
	case Private:
		to.Add(author.FollowersURL)
	case Direct:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidVisibility, v)
	}

	var audiences []audience
	if v != Direct {
		audiences = append(audiences, audience{Kind: audienceFollowers, AccountID: author.ID})
	}

	links := make([]*ap.Link, 0, len(mentioned))
	var tags ap.Array[ap.Ref[ap.Object]]
	for _, a := range mentioned {
		if v == Direct {
			to.Add(a.ActorID(f.Domain))
		} else {
			cc.Add(a.ActorID(f.Domain))
		}

		link := f.mention(a)
		links = append(links, link)
		tags = append(tags, ap.Inline[ap.Object](link))
		audiences = append(audiences, audience{Kind: audienceAccount, AccountID: a.ID})
	}

	uri, err := fed.NewID(f.Domain, "statuses")
	if err != nil {
		return nil, err
	}

	now := time.Now()

	note := &ap.Content{
		Envelope: ap.Envelope{
			Type:         ap.Note,
			ID:           uri,
			AttributedTo: ap.LinkTo[ap.Object](authorID),
			To:           to,
			CC:           cc,
			Published:    ap.Time{Time: now.UTC()},
			Content:      plain.ToHTML(post.Text, links),
			Summary:      post.Summary,
			Sensitive:    post.Sensitive,
			URL:          ap.Array[ap.Ref[ap.Object]]{ap.LinkTo[ap.Object](uri)},
			Tag:          tags,
		},
	}
	if post.InReplyTo != "" {
		note.InReplyTo = ap.LinkTo[ap.Object](post.InReplyTo)
	}

	create := &ap.Activity{
		Envelope: ap.Envelope{
			Type:      ap.Create,
			ID:        uri + "/activity",
			To:        to,
			CC:        cc,
			Published: note.Published,
		},
		Actor:  ap.LinkTo[*ap.Actor](authorID),
		Object: ap.Inline[ap.Object](note),
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	statusID := uuid.NewString()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO statuses(id, uri, url, account_id, local, in_reply_to_uri, content, text, summary, sensitive, visibility, created, updated) VALUES(?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		statusID,
		uri,
		uri,
		author.ID,
		post.InReplyTo,
		note.Content,
		post.Text,
		post.Summary,
		post.Sensitive,
		v,
		now.Unix(),
		now.Unix(),
	); err != nil {
		return nil, err
	}

	if err := replaceAudiences(ctx, tx, statusID, audiences); err != nil {
		return nil, err
	}

	if err := fanOut(ctx, tx, statusID, v, append(audiences, audience{Kind: audienceAccount, AccountID: author.ID})); err != nil {
		return nil, err
	}

	if err := f.notifyMentions(ctx, tx, note, author.ID, statusID); err != nil {
		return nil, err
	}

	if err := deliverTo(ctx, tx, author, create, v != Direct, mentioned); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Created status", "status", uri, "visibility", v, "mentions", len(mentioned))
	return Get(ctx, f.DB, statusID)
}

// Create creates a status by a local account and queues its delivery to remote followers and
// mentioned accounts.
func (f *Federation) Create(ctx context.Context, author *actors.Account, post Post) (*Status, error) {
	s, err := f.create(ctx, author, post)
	if err != nil {
		return nil, fmt.Errorf("%s failed to create status: %w", author.Username, err)
	}

	return s, nil
}

// remoteAudience returns the remote accounts a status is addressed to.
func remoteAudience(ctx context.Context, tx *sql.Tx, statusID string) ([]*actors.Account, error) {
	ids, err := dbx.QueryCollect[string](ctx, tx, `SELECT accounts.id FROM status_audiences JOIN accounts ON accounts.id = status_audiences.account_id WHERE status_audiences.status_id = ? AND status_audiences.kind = ? AND accounts.uri IS NOT NULL`, statusID, audienceAccount)
	if err != nil {
		return nil, err
	}

	l := make([]*actors.Account, 0, len(ids))
	for _, id := range ids {
		a, err := actors.GetByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		l = append(l, a)
	}

	return l, nil
}

func (f *Federation) delete(ctx context.Context, author *actors.Account, statusID string) error {
	s, err := Get(ctx, f.DB, statusID)
	if err != nil {
		return err
	}

	if !s.Local || s.AccountID != author.ID || s.ReblogOfID != "" {
		return fmt.Errorf("%w: %s", ErrNoSuchStatus, statusID)
	}

	authorID := author.ActorID(f.Domain)
	now := time.Now().UTC()

	to := ap.Audience{}
	to.Add(ap.Public)

	del := &ap.Activity{
		Envelope: ap.Envelope{
			Type: ap.Delete,
			ID:   s.URI + "#delete",
			To:   to,
		},
		Actor: ap.LinkTo[*ap.Actor](authorID),
		Object: ap.Inline[ap.Object](&ap.Tombstone{
			Envelope: ap.Envelope{
				Type: ap.TombstoneType,
				ID:   s.URI,
			},
			FormerType: ap.Note,
			Deleted:    ap.Time{Time: now},
		}),
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recipients, err := remoteAudience(ctx, tx, s.ID)
	if err != nil {
		return err
	}

	if err := removeRows(ctx, tx, s.ID); err != nil {
		return err
	}

	if err := deliverTo(ctx, tx, author, del, s.Visibility != Direct, recipients); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Deleted status", "status", s.URI)
	return nil
}

// Delete deletes a status by a local account and queues the delivery of a Delete activity.
func (f *Federation) Delete(ctx context.Context, author *actors.Account, statusID string) error {
	if err := f.delete(ctx, author, statusID); err != nil {
		return fmt.Errorf("%s failed to delete %s: %w", author.Username, statusID, err)
	}

	return nil
}

func (f *Federation) boostLocal(ctx context.Context, booster *actors.Account, uri string) error {
	if !booster.IsLocal() {
		return ErrNotLocal
	}

	original, err := GetByURI(ctx, f.DB, uri)
	if err != nil {
		return err
	}

	if original.ReblogOfID != "" {
		return fmt.Errorf("%w: %s", ErrNoSuchStatus, uri)
	}

	if original.Visibility != Public && original.Visibility != Unlisted {
		return fmt.Errorf("%w: %s", ErrNotPublic, uri)
	}

	author, err := actors.GetByID(ctx, f.DB, original.AccountID)
	if err != nil {
		return err
	}

	id, err := fed.NewID(f.Domain, "announce")
	if err != nil {
		return err
	}

	boosterID := booster.ActorID(f.Domain)
	now := time.Now()

	to := ap.Audience{}
	to.Add(ap.Public)

	cc := ap.Audience{}
	cc.Add(booster.FollowersURL)
	cc.Add(author.ActorID(f.Domain))

	announce := &ap.Activity{
		Envelope: ap.Envelope{
			Type:      ap.Announce,
			ID:        id,
			To:        to,
			CC:        cc,
			Published: ap.Time{Time: now.UTC()},
		},
		Actor:  ap.LinkTo[*ap.Actor](boosterID),
		Object: ap.LinkTo[ap.Object](original.URI),
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM statuses WHERE account_id = ? AND reblog_of_id = ?)`, booster.ID, original.ID).Scan(&exists); err != nil {
		return err
	} else if exists {
		slog.DebugContext(ctx, "Already boosted", "status", original.URI)
		return nil
	}

	statusID := uuid.NewString()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO statuses(id, uri, url, account_id, local, reblog_of_id, visibility, created, updated) VALUES(?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		statusID,
		id,
		id,
		booster.ID,
		original.ID,
		Public,
		now.Unix(),
		now.Unix(),
	); err != nil {
		return err
	}

	audiences := []audience{
		{Kind: audienceFollowers, AccountID: booster.ID},
		{Kind: audienceAccount, AccountID: author.ID},
	}

	if err := replaceAudiences(ctx, tx, statusID, audiences); err != nil {
		return err
	}

	if err := fanOut(ctx, tx, statusID, Public, append(audiences, audience{Kind: audienceAccount, AccountID: booster.ID})); err != nil {
		return err
	}

	if err := notify.Insert(ctx, tx, author.ID, booster.ID, notify.Reblog, original.ID); err != nil {
		return err
	}

	if err := deliverTo(ctx, tx, booster, announce, true, []*actors.Account{author}); err != nil {
		return err
	}

	return tx.Commit()
}

// Boost boosts a public or unlisted status by a local account and queues the delivery of an
// Announce activity.
func (f *Federation) Boost(ctx context.Context, booster *actors.Account, uri string) error {
	if err := f.boostLocal(ctx, booster, uri); err != nil {
		return fmt.Errorf("%s failed to boost %s: %w", booster.Username, uri, err)
	}

	return nil
}

func (f *Federation) like(ctx context.Context, liker *actors.Account, uri string) error {
	if !liker.IsLocal() {
		return ErrNotLocal
	}

	s, err := GetByURI(ctx, f.DB, uri)
	if err != nil {
		return err
	}

	author, err := actors.GetByID(ctx, f.DB, s.AccountID)
	if err != nil {
		return err
	}

	id, err := fed.NewID(f.Domain, "like")
	if err != nil {
		return err
	}

	to := ap.Audience{}
	to.Add(author.ActorID(f.Domain))

	like := &ap.Activity{
		Envelope: ap.Envelope{
			Type: ap.Like,
			ID:   id,
			To:   to,
		},
		Actor:  ap.LinkTo[*ap.Actor](liker.ActorID(f.Domain)),
		Object: ap.LinkTo[ap.Object](s.URI),
	}

	tx, err := f.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO favourites(account_id, status_id, uri) VALUES(?, ?, ?)`, liker.ID, s.ID, id); err != nil {
		return err
	} else if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return nil
	}

	if err := notify.Insert(ctx, tx, author.ID, liker.ID, notify.Favourite, s.ID); err != nil {
		return err
	}

	if err := deliverTo(ctx, tx, liker, like, false, []*actors.Account{author}); err != nil {
		return err
	}

	return tx.Commit()
}

// Like likes a status by a local account. If the status is remote, a Like activity is queued for
// delivery to its author.
func (f *Federation) Like(ctx context.Context, liker *actors.Account, uri string) error {
	if err := f.like(ctx, liker, uri); err != nil {
		return fmt.Errorf("%s failed to like %s: %w", liker.Username, uri, err)
	}

	return nil
}
