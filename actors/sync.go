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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/data"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/media"
	"github.com/google/uuid"
)

var ErrInvalidActor = errors.New("invalid actor")

// Syncer maintains the cache of remote actors.
type Syncer struct {
	Domain   string
	Config   *cfg.Config
	DB       *sql.DB
	Resolver *fed.Resolver

	// Media downloads avatars and headers, if not nil.
	Media *media.Store

	now func() time.Time
}

// NewSyncer returns a new [Syncer].
func NewSyncer(domain string, config *cfg.Config, db *sql.DB, resolver *fed.Resolver, store *media.Store) *Syncer {
	return &Syncer{
		Domain:   domain,
		Config:   config,
		DB:       db,
		Resolver: resolver,
		Media:    store,
		now:      time.Now,
	}
}

type publicKey struct {
	ID  string
	PEM string
}

type profileImage struct {
	ref  ap.Ref[ap.Object]
	file *media.File
	url  string
}

// keyDocument is a fetched key: either the key itself or its owner.
type keyDocument struct {
	ID           string                          `json:"id"`
	Owner        string                          `json:"owner"`
	PublicKeyPem string                          `json:"publicKeyPem"`
	PublicKey    ap.Array[ap.Ref[*ap.PublicKey]] `json:"publicKey"`
}

// GetByID returns an account by ID.
func GetByID(ctx context.Context, db dbx.Querier, id string) (*Account, error) {
	account, err := dbx.QueryOne[Account](ctx, db, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return &account, nil
}

// GetByURI returns a cached remote account by actor ID.
func GetByURI(ctx context.Context, db dbx.Querier, uri string) (*Account, error) {
	account, err := dbx.QueryOne[Account](ctx, db, `SELECT `+accountColumns+` FROM accounts WHERE uri = ?`, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", uri, err)
	}
	return &account, nil
}

// GetLocal returns a local account by user name.
func GetLocal(ctx context.Context, db dbx.Querier, username string) (*Account, error) {
	account, err := dbx.QueryOne[Account](ctx, db, `SELECT `+accountColumns+` FROM accounts WHERE username = ? AND uri IS NULL`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", fed.ErrNoSuchAccount, username)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", username, err)
	}
	return &account, nil
}

// ownCollections returns a copy of actor without followers or following collections hosted
// elsewhere, so an actor cannot claim the followers of another.
func ownCollections(ctx context.Context, actor *ap.Actor, host string) *ap.Actor {
	own := *actor

	for _, c := range []struct {
		name string
		ref  *ap.Ref[*ap.Collection]
	}{
		{"followers", &own.Followers},
		{"following", &own.Following},
	} {
		if c.ref.IsZero() {
			continue
		}

		if u, err := url.Parse(c.ref.ID()); err != nil || !strings.EqualFold(u.Host, host) {
			slog.InfoContext(ctx, "Ignoring collection on another host", "actor", actor.ID, "collection", c.name, "id", c.ref.ID())
			*c.ref = ap.Ref[*ap.Collection]{}
		}
	}

	return &own
}

// Sync updates the cached copy of a remote actor and returns its account.
//
// If the actor is new, its avatar and header are downloaded even if their URLs are unchanged. If
// followGraph is true, follow edges are imported from the actor's followers and following
// collections. If the actor is local, Sync returns the local account unchanged.
func (s *Syncer) Sync(ctx context.Context, actor *ap.Actor, isNew, followGraph bool) (*Account, error) {
	if username, ok := LocalUsername(s.Domain, actor.ID); ok {
		return GetLocal(ctx, s.DB, username)
	}

	u, err := url.Parse(actor.ID)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidActor, actor.ID)
	}

	if !actor.Type.IsActor() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidActor, actor.ID, actor.Type)
	}

	if actor.Inbox == "" {
		return nil, fmt.Errorf("%w: %s has no inbox", ErrInvalidActor, actor.ID)
	}

	if u.Host == s.Domain {
		return nil, fmt.Errorf("%w: %s is local", ErrLocalAccount, actor.ID)
	}

	actor = ownCollections(ctx, actor, u.Host)

	existing, err := GetByURI(ctx, s.DB, actor.ID)
	if errors.Is(err, sql.ErrNoRows) {
		existing = nil
	} else if err != nil {
		return nil, err
	}

	keys := s.fetchKeys(ctx, actor, u.Host)

	avatar := profileImage{ref: actor.Icon}
	header := profileImage{ref: actor.Image}
	if existing != nil {
		avatar.url = existing.AvatarURL
		header.url = existing.HeaderURL
	}
	s.fetchImage(ctx, &avatar, isNew)
	s.fetchImage(ctx, &header, isNew)

	now := s.now()

	created := now.Unix()
	if !actor.Published.IsZero() {
		created = actor.Published.Unix()
	} else if existing != nil {
		created = existing.Created
	}

	username := actor.PreferredUsername
	if username == "" {
		username = u.Host
	}

	var sharedInbox string
	if endpoints, ok := actor.Endpoints.Value(); ok && endpoints != nil {
		sharedInbox = endpoints.SharedInbox
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", actor.ID, err)
	}
	defer tx.Rollback()

	var accountID string
	if err := tx.QueryRowContext(
		ctx,
		`INSERT INTO accounts(id, uri, username, domain, display_name, note, url, inbox, outbox, shared_inbox, followers_url, following_url, locked, created, fetched) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(uri) DO UPDATE SET username = excluded.username, domain = excluded.domain, display_name = excluded.display_name, note = excluded.note, url = excluded.url, inbox = excluded.inbox, outbox = excluded.outbox, shared_inbox = excluded.shared_inbox, followers_url = excluded.followers_url, following_url = excluded.following_url, locked = excluded.locked, created = excluded.created, fetched = excluded.fetched RETURNING id`,
		uuid.NewString(),
		actor.ID,
		username,
		u.Host,
		actor.Name,
		actor.Summary,
		actor.CanonicalURL(),
		actor.Inbox,
		actor.Outbox,
		sharedInbox,
		actor.Followers.ID(),
		actor.Following.ID(),
		actor.ManuallyApprovesFollowers,
		created,
		now.Unix(),
	).Scan(&accountID); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", actor.ID, err)
	}

	if err := s.replaceFields(ctx, tx, accountID, actor); err != nil {
		return nil, fmt.Errorf("failed to cache %s fields: %w", actor.ID, err)
	}

	if err := s.storeKeys(ctx, tx, accountID, keys); err != nil {
		return nil, fmt.Errorf("failed to cache %s keys: %w", actor.ID, err)
	}

	var oldFiles []string

	if avatar.file != nil || avatar.url == "" {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET avatar_file = ?, avatar_url = ?, avatar_type = ? WHERE id = ?`, avatar.name(), avatar.url, avatar.mediaType(), accountID); err != nil {
			return nil, fmt.Errorf("failed to cache %s avatar: %w", actor.ID, err)
		}

		if existing != nil {
			oldFiles = append(oldFiles, existing.AvatarFile)
		}
	}

	if header.file != nil || header.url == "" {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET header_file = ?, header_url = ?, header_type = ? WHERE id = ?`, header.name(), header.url, header.mediaType(), accountID); err != nil {
			return nil, fmt.Errorf("failed to cache %s header: %w", actor.ID, err)
		}

		if existing != nil {
			oldFiles = append(oldFiles, existing.HeaderFile)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", actor.ID, err)
	}

	if s.Media != nil {
		for _, name := range oldFiles {
			if err := s.Media.Remove(name); err != nil {
				slog.WarnContext(ctx, "Failed to remove old image", "actor", actor.ID, "name", name, "error", err)
			}
		}
	}

	account, err := GetByID(ctx, s.DB, accountID)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Cached actor", "actor", actor.ID, "account", accountID, "new", existing == nil, "keys", len(keys))

	if followGraph {
		s.syncGraph(ctx, account, actor)

		if account, err = GetByID(ctx, s.DB, accountID); err != nil {
			return nil, err
		}
	}

	return account, nil
}

func (i *profileImage) name() string {
	if i.file == nil {
		return ""
	}
	return i.file.Name
}

func (i *profileImage) mediaType() string {
	if i.file == nil {
		return ""
	}
	return i.file.Type
}

// fetchImage downloads an avatar or a header if its URL has changed.
//
// On return, url is empty if the actor has no image, and file is set if a new file was downloaded.
func (s *Syncer) fetchImage(ctx context.Context, i *profileImage, force bool) {
	if i.ref.IsZero() {
		i.url = ""
		return
	}

	o, ok := fed.Resolve(ctx, s.Resolver, i.ref)
	if !ok {
		return
	}

	rawURL := o.Common().CanonicalURL()
	if rawURL == "" {
		i.url = ""
		return
	}

	if rawURL == i.url && !force {
		return
	}

	if s.Media == nil {
		return
	}

	f, err := s.Media.Download(ctx, rawURL, o.Common().MediaType)
	if err != nil {
		slog.InfoContext(ctx, "Skipping image", "url", rawURL, "type", o.Common().MediaType, "error", err)
		return
	}

	i.file = f
	i.url = rawURL
}

// fetchKeys returns the valid keys of an actor.
//
// A key must be owned by the actor and have the same host.
func (s *Syncer) fetchKeys(ctx context.Context, actor *ap.Actor, host string) []publicKey {
	var keys []publicKey

	for _, ref := range actor.PublicKey {
		if len(keys) == s.Config.MaxKeysPerActor {
			slog.InfoContext(ctx, "Actor has too many keys", "actor", actor.ID, "max", s.Config.MaxKeysPerActor)
			break
		}

		key, ok := ref.Value()
		if !ok {
			var err error
			if key, err = s.fetchKey(ctx, ref.ID()); err != nil {
				slog.InfoContext(ctx, "Failed to fetch key", "actor", actor.ID, "key", ref.ID(), "error", err)
				continue
			}
		}

		if key == nil || key.ID == "" {
			continue
		}

		if key.Owner != actor.ID {
			slog.InfoContext(ctx, "Key belongs to another actor", "actor", actor.ID, "key", key.ID, "owner", key.Owner)
			continue
		}

		if u, err := url.Parse(key.ID); err != nil || u.Host != host {
			slog.InfoContext(ctx, "Key is on another host", "actor", actor.ID, "key", key.ID)
			continue
		}

		parsed, err := data.ParsePublicKey(key.PublicKeyPem)
		if err != nil {
			slog.InfoContext(ctx, "Failed to parse key", "actor", actor.ID, "key", key.ID, "error", err)
			continue
		}

		pem, err := data.EncodePublicKey(parsed)
		if err != nil {
			slog.InfoContext(ctx, "Failed to encode key", "actor", actor.ID, "key", key.ID, "error", err)
			continue
		}

		keys = append(keys, publicKey{ID: key.ID, PEM: pem})
	}

	return keys
}

// fetchKey fetches a key by ID: the response is either the key or its owner.
func (s *Syncer) fetchKey(ctx context.Context, id string) (*ap.PublicKey, error) {
	if id == "" {
		return nil, errors.New("empty key ID")
	}

	body, _, err := s.Resolver.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var doc keyDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", id, err)
	}

	if doc.PublicKeyPem != "" && doc.ID == id {
		return &ap.PublicKey{ID: doc.ID, Owner: doc.Owner, PublicKeyPem: doc.PublicKeyPem}, nil
	}

	for _, ref := range doc.PublicKey {
		if key, ok := ref.Value(); ok && key != nil && key.ID == id {
			return key, nil
		}
	}

	return nil, fmt.Errorf("%s does not contain the key", id)
}

func (s *Syncer) storeKeys(ctx context.Context, tx *sql.Tx, accountID string, keys []publicKey) error {
	if len(keys) == 0 {
		return nil
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ID)

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO public_keys(key_id, account_id, pem) VALUES(?, ?, ?) ON CONFLICT(key_id) DO UPDATE SET pem = excluded.pem WHERE public_keys.account_id = excluded.account_id`,
			key.ID,
			accountID,
			key.PEM,
		); err != nil {
			return err
		}
	}

	j, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM public_keys WHERE account_id = ? AND key_id NOT IN (SELECT value FROM json_each(?))`, accountID, string(j))
	return err
}

func (s *Syncer) replaceFields(ctx context.Context, tx *sql.Tx, accountID string, actor *ap.Actor) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM account_fields WHERE account_id = ?`, accountID); err != nil {
		return err
	}

	position := 0
	for _, ref := range actor.Attachment {
		if position == s.Config.MaxFieldsPerActor {
			break
		}

		v, ok := ref.Value()
		if !ok {
			continue
		}

		field, ok := v.(*ap.PropertyValue)
		if !ok || field.Name == "" {
			continue
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO account_fields(account_id, position, name, value) VALUES(?, ?, ?, ?)`,
			accountID,
			position,
			field.Name,
			field.Value,
		); err != nil {
			return err
		}

		position++
	}

	return nil
}
