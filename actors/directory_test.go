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
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/data"
	"github.com/dimkr/tusk/fed"
	"github.com/stretchr/testify/assert"
)

func newTestDirectory(t *testing.T) *Directory {
	var config cfg.Config
	config.FillDefaults()

	return &Directory{
		Domain: "a.example",
		Config: &config,
		DB:     newTestDB(t),
	}
}

func TestDirectory_Create(t *testing.T) {
	assert := assert.New(t)

	d := newTestDirectory(t)

	account, err := d.Create(context.Background(), "alice")
	assert.NoError(err)
	assert.True(account.IsLocal())
	assert.Equal("alice", account.Username)
	assert.Equal("alice", account.Acct())
	assert.Equal("https://a.example/users/alice", account.ActorID(d.Domain))
	assert.Equal("https://a.example/users/alice/inbox", account.Inbox)
	assert.Equal("https://a.example/inbox", account.SharedInbox)
	assert.Equal("https://a.example/users/alice/followers", account.FollowersURL)
	assert.False(account.Locked)

	same, err := d.Get(context.Background(), "alice")
	assert.NoError(err)
	assert.Equal(account, same)
}

func TestDirectory_CreateExists(t *testing.T) {
	d := newTestDirectory(t)

	_, err := d.Create(context.Background(), "alice")
	assert.NoError(t, err)

	_, err = d.Create(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestDirectory_CreateInvalid(t *testing.T) {
	d := newTestDirectory(t)

	for _, username := range []string{"", "al ice", "alice/bob", "../alice", strings.Repeat("a", 31)} {
		_, err := d.Create(context.Background(), username)
		assert.ErrorIs(t, err, ErrInvalidUserName, username)
	}

	assert.Zero(t, countRows(t, d.DB, `SELECT COUNT(*) FROM accounts`))
}

func TestDirectory_Document(t *testing.T) {
	assert := assert.New(t)

	d := newTestDirectory(t)

	account, err := d.Create(context.Background(), "alice")
	assert.NoError(err)

	assert.NoError(d.SetLocked(context.Background(), "alice", true))

	if _, err := d.DB.Exec(`INSERT INTO account_fields(account_id, position, name, value) VALUES(?, 0, 'Website', 'alice.example')`, account.ID); err != nil {
		t.Fatal(err)
	}

	actor, err := d.Document(context.Background(), "alice")
	assert.NoError(err)
	assert.Equal("https://a.example/users/alice", actor.ID)
	assert.Equal("alice", actor.PreferredUsername)
	assert.True(actor.ManuallyApprovesFollowers)
	assert.Equal("https://a.example/users/alice/outbox", actor.Outbox)
	assert.Equal("https://a.example/users/alice/following", actor.Following.ID())
	assert.Len(actor.Attachment, 1)

	assert.Len(actor.PublicKey, 1)
	key, ok := actor.PublicKey[0].Value()
	assert.True(ok)
	assert.Equal("https://a.example/users/alice#main-key", key.ID)
	assert.Equal(actor.ID, key.Owner)

	pub, err := data.ParsePublicKey(key.PublicKeyPem)
	assert.NoError(err)

	signing, err := d.Key(context.Background(), account.ID)
	assert.NoError(err)
	assert.Equal(key.ID, signing.ID)
	assert.True(signing.PrivateKey.(*rsa.PrivateKey).PublicKey.Equal(pub))

	// cached
	again, err := d.Key(context.Background(), account.ID)
	assert.NoError(err)
	assert.Same(signing, again)
}

func TestDirectory_Missing(t *testing.T) {
	assert := assert.New(t)

	d := newTestDirectory(t)

	_, err := d.Get(context.Background(), "alice")
	assert.ErrorIs(err, fed.ErrNoSuchAccount)

	_, err = d.Document(context.Background(), "alice")
	assert.ErrorIs(err, fed.ErrNoSuchAccount)

	assert.ErrorIs(d.SetLocked(context.Background(), "alice", true), fed.ErrNoSuchAccount)

	_, err = d.Key(context.Background(), "alice-id")
	assert.ErrorIs(err, fed.ErrNoSuchAccount)
}

func TestDirectory_KeyWithoutPrivateKey(t *testing.T) {
	d := newTestDirectory(t)
	insertLocal(t, d.DB, "alice-id", "alice")

	key, err := d.Key(context.Background(), "alice-id")
	assert.NoError(t, err)
	assert.Nil(t, key)
}

func TestDirectory_RemoteUserName(t *testing.T) {
	assert := assert.New(t)

	d := newTestDirectory(t)

	s, _ := newTestSyncer(t)
	s.DB = d.DB
	actor := newActor("https://b.example/users/alice")
	actor.PreferredUsername = "alice"

	_, err := s.Sync(context.Background(), actor, true, false)
	assert.NoError(err)

	// a remote alice does not block a local one
	_, err = d.Create(context.Background(), "alice")
	assert.NoError(err)
}
