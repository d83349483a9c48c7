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
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/data"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/httpsig"
	"github.com/google/uuid"
)

var (
	ErrInvalidUserName = errors.New("invalid user name")
	ErrAccountExists   = errors.New("account already exists")
)

const keyBits = 2048

type field struct {
	Name  string
	Value string
}

// Directory manages local accounts.
type Directory struct {
	Domain string
	Config *cfg.Config
	DB     *sql.DB

	keys sync.Map
}

// Create creates a local account with a new RSA key pair.
func (d *Directory) Create(ctx context.Context, username string) (*Account, error) {
	if !d.Config.CompiledUserNameRegex.MatchString(username) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUserName, username)
	}

	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for %s: %w", username, err)
	}

	privPem, err := data.EncodePrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key of %s: %w", username, err)
	}

	pubPem, err := data.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key of %s: %w", username, err)
	}

	id := localActorID(d.Domain, username)

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", username, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = ? AND uri IS NULL)`, username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", username, err)
	} else if exists == 1 {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, username)
	}

	accountID := uuid.NewString()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO accounts(id, username, domain, url, inbox, outbox, shared_inbox, followers_url, following_url, private_key) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID,
		username,
		d.Domain,
		id,
		id+"/inbox",
		id+"/outbox",
		"https://"+d.Domain+"/inbox",
		id+"/followers",
		id+"/following",
		privPem,
	); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", username, err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO public_keys(key_id, account_id, pem) VALUES(?, ?, ?)`,
		id+"#main-key",
		accountID,
		pubPem,
	); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", username, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", username, err)
	}

	slog.InfoContext(ctx, "Created account", "username", username, "id", accountID)

	return d.Get(ctx, username)
}

// Get returns a local account by user name.
func (d *Directory) Get(ctx context.Context, username string) (*Account, error) {
	account, err := dbx.QueryOne[Account](ctx, d.DB, `SELECT `+accountColumns+` FROM accounts WHERE username = ? AND uri IS NULL`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", fed.ErrNoSuchAccount, username)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", username, err)
	}

	return &account, nil
}

// Document returns the actor of a local account.
func (d *Directory) Document(ctx context.Context, username string) (*ap.Actor, error) {
	account, err := d.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	id := account.ActorID(d.Domain)

	var pem string
	if err := d.DB.QueryRowContext(ctx, `SELECT pem FROM public_keys WHERE key_id = ?`, id+"#main-key").Scan(&pem); err != nil {
		return nil, fmt.Errorf("failed to get key of %s: %w", username, err)
	}

	actor := ap.Actor{
		Envelope: ap.Envelope{
			Type:      ap.Person,
			ID:        id,
			Name:      account.DisplayName,
			Summary:   account.Note,
			Published: ap.Time{Time: time.Unix(account.Created, 0).UTC()},
			URL:       ap.Array[ap.Ref[ap.Object]]{ap.LinkTo[ap.Object](account.URL)},
		},
		PreferredUsername: username,
		Inbox:             account.Inbox,
		Outbox:            account.Outbox,
		Followers:         ap.LinkTo[*ap.Collection](account.FollowersURL),
		Following:         ap.LinkTo[*ap.Collection](account.FollowingURL),
		Endpoints:         ap.Inline(&ap.Endpoints{SharedInbox: account.SharedInbox}),
		PublicKey: ap.Array[ap.Ref[*ap.PublicKey]]{
			ap.Inline(&ap.PublicKey{
				ID:           id + "#main-key",
				Owner:        id,
				PublicKeyPem: pem,
			}),
		},
		ManuallyApprovesFollowers: account.Locked,
	}

	fields, err := dbx.QueryCollect[field](ctx, d.DB, `SELECT name, value FROM account_fields WHERE account_id = ? ORDER BY position`, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fields of %s: %w", username, err)
	}

	for _, f := range fields {
		actor.Attachment = append(actor.Attachment, ap.Inline[ap.Object](&ap.PropertyValue{
			Envelope: ap.Envelope{Type: ap.PropertyValueType, Name: f.Name},
			Value:    f.Value,
		}))
	}

	return &actor, nil
}

// SetLocked sets whether a local account approves followers manually.
func (d *Directory) SetLocked(ctx context.Context, username string, locked bool) error {
	if res, err := d.DB.ExecContext(ctx, `UPDATE accounts SET locked = ? WHERE username = ? AND uri IS NULL`, locked, username); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", fed.ErrNoSuchAccount, username)
	}

	return nil
}

// Key returns the signing key of a local account, or nil if the account has no private key.
func (d *Directory) Key(ctx context.Context, accountID string) (*httpsig.Key, error) {
	if key, ok := d.keys.Load(accountID); ok {
		return key.(*httpsig.Key), nil
	}

	var username string
	var privPem sql.NullString
	if err := d.DB.QueryRowContext(ctx, `SELECT username, private_key FROM accounts WHERE id = ? AND uri IS NULL`, accountID).Scan(&username, &privPem); errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", fed.ErrNoSuchAccount, accountID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get key of %s: %w", accountID, err)
	}

	if !privPem.Valid || privPem.String == "" {
		return nil, nil
	}

	priv, err := data.ParsePrivateKey(privPem.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key of %s: %w", accountID, err)
	}

	key := &httpsig.Key{ID: localActorID(d.Domain, username) + "#main-key", PrivateKey: priv}
	d.keys.Store(accountID, key)
	return key, nil
}
