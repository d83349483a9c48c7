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

// Package status stores statuses received from other servers and federates local ones.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
)

// Visibility determines who can see a status.
type Visibility string

const (
	Public   Visibility = "public"
	Unlisted Visibility = "unlisted"
	Private  Visibility = "private"
	Direct   Visibility = "direct"
)

// audience kinds
const (
	audienceAccount   = "account"
	audienceFollowers = "followers"
)

var (
	ErrForged       = errors.New("status is attributed to another actor")
	ErrNotLocal     = errors.New("account is not local")
	ErrNoSuchStatus = errors.New("no such status")
)

// Resolver resolves an actor ID to an account, fetching it if needed.
type Resolver interface {
	Resolve(ctx context.Context, id string, followGraph bool) (*actors.Account, error)
}

// Federation applies statuses, boosts and likes received from other servers, and creates and
// delivers local ones.
type Federation struct {
	Domain string
	DB     *sql.DB

	// Accounts resolves authors and recipients.
	Accounts Resolver

	// Objects fetches boosted statuses.
	Objects *fed.Resolver
}

// Status is a row in the statuses table.
type Status struct {
	ID           string
	URI          string
	URL          string
	AccountID    string
	Local        bool
	InReplyToURI string
	ReblogOfID   string
	Content      string
	Text         string
	Summary      string
	Sensitive    bool
	Visibility   Visibility
	Created      int64
	Updated      int64
}

const statusColumns = `id, uri, url, account_id, local, in_reply_to_uri, reblog_of_id, content, text, summary, sensitive, visibility, created, updated`

type audience struct {
	Kind      string
	AccountID string
}

// New returns a new [Federation].
func New(domain string, db *sql.DB, accounts Resolver, objects *fed.Resolver) *Federation {
	return &Federation{
		Domain:   domain,
		DB:       db,
		Accounts: accounts,
		Objects:  objects,
	}
}

// Get returns a status by ID.
func Get(ctx context.Context, db dbx.Querier, id string) (*Status, error) {
	s, err := dbx.QueryOne[Status](ctx, db, `SELECT `+statusColumns+` FROM statuses WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchStatus, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get status %s: %w", id, err)
	}

	return &s, nil
}

// GetByURI returns a status by its ActivityPub ID.
func GetByURI(ctx context.Context, db dbx.Querier, uri string) (*Status, error) {
	s, err := dbx.QueryOne[Status](ctx, db, `SELECT `+statusColumns+` FROM statuses WHERE uri = ?`, uri)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchStatus, uri)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get status %s: %w", uri, err)
	}

	return &s, nil
}

// visibility determines the visibility of an object from its recipients.
//
// Objects addressed to the public in "to" are public, while objects that only cc the public are
// unlisted. Otherwise, objects addressed to the followers collection of their author are private,
// and all others are direct.
func visibility(o *ap.Envelope, followersURL string) Visibility {
	if o.To.IsPublic() {
		return Public
	}

	if o.CC.IsPublic() {
		return Unlisted
	}

	if followersURL != "" && (o.To.Contains(followersURL) || o.CC.Contains(followersURL)) {
		return Private
	}

	return Direct
}

// audiences resolves the recipients of an object sent by owner.
//
// The followers collection of owner, or of a known account on the same host as the collection,
// becomes a followers audience, while other recipients are resolved as actors. Recipients that
// cannot be resolved are skipped.
func (f *Federation) audiences(ctx context.Context, o *ap.Envelope, owner *actors.Account) []audience {
	var l []audience
	seen := map[audience]struct{}{}

	add := func(a audience) {
		if _, dup := seen[a]; !dup {
			seen[a] = struct{}{}
			l = append(l, a)
		}
	}

	for _, aud := range []ap.Audience{o.To, o.CC} {
		for _, id := range aud.Keys() {
			if ap.IsPublicID(id) {
				continue
			}

			u, err := url.Parse(id)
			if err != nil || u.Scheme != "https" || u.Host == "" {
				slog.DebugContext(ctx, "Skipping invalid recipient", "recipient", id)
				continue
			}

			if owner.FollowersURL != "" && id == owner.FollowersURL {
				add(audience{Kind: audienceFollowers, AccountID: owner.ID})
				continue
			}

			var accountID string
			if err := f.DB.QueryRowContext(ctx, `SELECT id FROM accounts WHERE followers_url = ? AND domain = ? ORDER BY fetched DESC LIMIT 1`, id, u.Host).Scan(&accountID); err == nil {
				add(audience{Kind: audienceFollowers, AccountID: accountID})
				continue
			} else if !errors.Is(err, sql.ErrNoRows) {
				slog.WarnContext(ctx, "Failed to look up followers collection", "recipient", id, "error", err)
				continue
			}

			account, err := f.Accounts.Resolve(ctx, id, false)
			if err != nil {
				slog.InfoContext(ctx, "Skipping unresolvable recipient", "recipient", id, "error", err)
				continue
			}

			add(audience{Kind: audienceAccount, AccountID: account.ID})
		}
	}

	return l
}

// replaceAudiences replaces the audience rows of a status.
func replaceAudiences(ctx context.Context, tx *sql.Tx, statusID string, audiences []audience) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM status_audiences WHERE status_id = ?`, statusID); err != nil {
		return fmt.Errorf("failed to remove audiences of %s: %w", statusID, err)
	}

	for _, a := range audiences {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO status_audiences(status_id, kind, account_id) VALUES(?, ?, ?)`, statusID, a.Kind, a.AccountID); err != nil {
			return fmt.Errorf("failed to add audience to %s: %w", statusID, err)
		}
	}

	return nil
}

// fanOut adds a new status to timelines.
//
// Public statuses are added to the public timeline. A status addressed to a local account is added
// to its home timeline, and a status addressed to the followers of an account is added to the home
// timelines of its local followers.
func fanOut(ctx context.Context, tx *sql.Tx, statusID string, v Visibility, audiences []audience) error {
	if v == Public {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO public_timeline(status_id) VALUES(?)`, statusID); err != nil {
			return fmt.Errorf("failed to add %s to public timeline: %w", statusID, err)
		}
	}

	for _, a := range audiences {
		switch a.Kind {
		case audienceAccount:
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO home_timeline(account_id, status_id) SELECT id, ? FROM accounts WHERE id = ? AND uri IS NULL`,
				statusID,
				a.AccountID,
			); err != nil {
				return fmt.Errorf("failed to add %s to home timeline: %w", statusID, err)
			}

		case audienceFollowers:
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO home_timeline(account_id, status_id) SELECT follows.account_id, ? FROM follows JOIN accounts ON accounts.id = follows.account_id WHERE follows.target_account_id = ? AND follows.pending = 0 AND accounts.uri IS NULL`,
				statusID,
				a.AccountID,
			); err != nil {
				return fmt.Errorf("failed to add %s to home timelines: %w", statusID, err)
			}
		}
	}

	return nil
}

// removeRows deletes a status and everything that refers to it, including boosts.
func removeRows(ctx context.Context, tx *sql.Tx, statusID string) error {
	for _, query := range []string{
		`DELETE FROM home_timeline WHERE status_id = ?1 OR status_id IN (SELECT id FROM statuses WHERE reblog_of_id = ?1)`,
		`DELETE FROM public_timeline WHERE status_id = ?1 OR status_id IN (SELECT id FROM statuses WHERE reblog_of_id = ?1)`,
		`DELETE FROM status_audiences WHERE status_id = ?1 OR status_id IN (SELECT id FROM statuses WHERE reblog_of_id = ?1)`,
		`DELETE FROM favourites WHERE status_id = ?1`,
		`DELETE FROM notifications WHERE status_id = ?1 OR status_id IN (SELECT id FROM statuses WHERE reblog_of_id = ?1)`,
		`DELETE FROM statuses WHERE id = ?1 OR reblog_of_id = ?1`,
	} {
		if _, err := tx.ExecContext(ctx, query, statusID); err != nil {
			return fmt.Errorf("failed to remove %s: %w", statusID, err)
		}
	}

	return nil
}

// inbox returns the inbox used to deliver to an account, preferring its shared inbox.
func inbox(a *actors.Account) string {
	if a.SharedInbox != "" {
		return a.SharedInbox
	}
	return a.Inbox
}
