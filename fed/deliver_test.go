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

package fed

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/httpsig"
	"github.com/dimkr/tusk/migrations"
	"github.com/dimkr/tusk/queue"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

type testKeys map[string]*httpsig.Key

func (k testKeys) Key(_ context.Context, accountID string) (*httpsig.Key, error) {
	key, ok := k[accountID]
	if !ok {
		return nil, errors.New("no such account")
	}
	return key, nil
}

var testKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

var follow = &ap.Activity{
	Envelope: ap.Envelope{Type: ap.Follow, ID: "https://a.example/follows/1"},
	Actor:    ap.LinkTo[*ap.Actor]("https://a.example/users/alice"),
	Object:   ap.LinkTo[ap.Object]("https://b.example/users/bob"),
}

func newTestDeliverer(client Client) *Deliverer {
	var config cfg.Config
	config.FillDefaults()

	return NewDeliverer(
		"a.example",
		&config,
		client,
		nil,
		testKeys{
			"alice": {ID: "https://a.example/users/alice#main-key", PrivateKey: testKey},
			"nokey": nil,
		},
	)
}

func newTestDB(t *testing.T) *sql.DB {
	f, err := os.CreateTemp("", "tusk-*.sqlite3")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := sql.Open("sqlite3", f.Name()+"?_journal_mode=WAL")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	return db
}

func TestDeliverer_Signed(t *testing.T) {
	assert := assert.New(t)

	body, err := ap.Serialize(follow)
	assert.NoError(err)

	d := newTestDeliverer(clientFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(http.MethodPost, req.Method)
		assert.Equal(ap.ContentType, req.Header.Get("Content-Type"))

		received, err := io.ReadAll(req.Body)
		assert.NoError(err)
		assert.Equal(body, received)
		assert.NoError(ap.ValidateDigest(received, req.Header.Get("Digest")))

		sig, err := httpsig.Extract(req)
		assert.NoError(err)
		assert.Equal("https://a.example/users/alice#main-key", sig.KeyID)
		assert.Equal([]string{"(request-target)", "host", "date", "digest", "content-type"}, sig.Headers)
		assert.True(sig.Verify(&testKey.PublicKey))

		return newTestResponse(http.StatusAccepted, ""), nil
	}))

	assert.NoError(d.Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://b.example/users/bob/inbox", Activity: body}))
}

func TestDeliverer_NoPrivateKey(t *testing.T) {
	assert := assert.New(t)

	d := newTestDeliverer(clientFunc(func(req *http.Request) (*http.Response, error) {
		assert.Empty(req.Header.Get("Signature"))
		assert.NotEmpty(req.Header.Get("Digest"))
		assert.NotEmpty(req.Header.Get("Date"))
		assert.Equal("b.example", req.Header.Get("Host"))
		return newTestResponse(http.StatusOK, ""), nil
	}))

	assert.NoError(d.Deliver(context.Background(), &Delivery{Sender: "nokey", Inbox: "https://b.example/inbox", Activity: []byte("{}")}))
}

func TestDeliverer_KeyLookupFailure(t *testing.T) {
	client := newTestClient(map[string]testResponse{})
	err := newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Sender: "carol", Inbox: "https://b.example/inbox", Activity: []byte("{}")})
	assert.Error(t, err)
	assert.False(t, queue.IsExpected(err))
}

func TestDeliverer_RateLimited(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(map[string]testResponse{
		"https://b.example/inbox": {Response: rateLimited("10")},
	})

	err := newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://b.example/inbox", Activity: []byte("{}")})
	assert.ErrorIs(err, ErrTooManyRequests)
	assert.False(queue.IsExpected(err))

	after, ok := queue.RetryAfter(err)
	assert.True(ok)
	assert.Equal(time.Second*10, after)
}

func TestDeliverer_Gone(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/inbox": {Response: newTestResponse(http.StatusGone, "")},
	})

	err := newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://b.example/inbox", Activity: []byte("{}")})
	assert.True(t, queue.IsExpected(err))

	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusGone, statusErr.StatusCode)
}

func TestDeliverer_NetworkError(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/inbox": {Error: errors.New("connection reset")},
	})

	err := newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://b.example/inbox", Activity: []byte("{}")})
	assert.Error(t, err)
	assert.False(t, queue.IsExpected(err))

	_, ok := queue.RetryAfter(err)
	assert.False(t, ok)
}

func TestDeliverer_LocalInbox(t *testing.T) {
	client := newTestClient(map[string]testResponse{})
	assert.NoError(t, newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://a.example/inbox", Activity: []byte("{}")}))
}

func TestDeliverer_Blocked(t *testing.T) {
	client := newTestClient(map[string]testResponse{})
	d := newTestDeliverer(&client)
	d.BlockList = &BlockList{domains: map[string]struct{}{"b.example": {}}}

	err := d.Deliver(context.Background(), &Delivery{Sender: "alice", Inbox: "https://b.example/inbox", Activity: []byte("{}")})
	assert.ErrorIs(t, err, ErrBlockedDomain)
	assert.True(t, queue.IsExpected(err))
}

func TestDeliverer_InvalidInbox(t *testing.T) {
	client := newTestClient(map[string]testResponse{})
	err := newTestDeliverer(&client).Deliver(context.Background(), &Delivery{Inbox: "http://b.example/inbox"})
	assert.True(t, queue.IsExpected(err))
}

func TestDeliver_Queued(t *testing.T) {
	assert := assert.New(t)

	db := newTestDB(t)

	var config cfg.Config
	config.FillDefaults()

	assert.NoError(Deliver(context.Background(), db, "alice", "https://b.example/users/bob/inbox", follow))
	assert.NoError(Deliver(context.Background(), db, "alice", "https://b.example/users/bob/inbox", follow))

	var jobs []Delivery
	q := queue.New(&config, db)
	queue.Handle(q, DeliverJob, func(_ context.Context, job *Delivery) error {
		jobs = append(jobs, *job)
		return nil
	})

	n, err := q.RunOnce(context.Background())
	assert.NoError(err)
	assert.Equal(1, n)

	assert.Len(jobs, 1)
	assert.Equal("alice", jobs[0].Sender)
	assert.Equal("https://b.example/users/bob/inbox", jobs[0].Inbox)

	o, err := ap.Parse(jobs[0].Activity, ap.ContentType)
	assert.NoError(err)
	assert.Equal(follow, o)
}

func TestDeliverToFollowers_SharedInbox(t *testing.T) {
	assert := assert.New(t)

	db := newTestDB(t)

	for _, stmt := range []string{
		`INSERT INTO accounts(id, username) VALUES('alice', 'alice')`,
		`INSERT INTO accounts(id, username) VALUES('dave', 'dave')`,
		`INSERT INTO accounts(id, uri, username, inbox, shared_inbox) VALUES('bob', 'https://b.example/users/bob', 'bob', 'https://b.example/users/bob/inbox', 'https://b.example/inbox')`,
		`INSERT INTO accounts(id, uri, username, inbox, shared_inbox) VALUES('carol', 'https://b.example/users/carol', 'carol', 'https://b.example/users/carol/inbox', 'https://b.example/inbox')`,
		`INSERT INTO accounts(id, uri, username, inbox) VALUES('erin', 'https://c.example/users/erin', 'erin', 'https://c.example/users/erin/inbox')`,
		`INSERT INTO accounts(id, uri, username, inbox) VALUES('frank', 'https://d.example/users/frank', 'frank', 'https://d.example/users/frank/inbox')`,
		`INSERT INTO follows(id, account_id, target_account_id) VALUES('1', 'bob', 'alice')`,
		`INSERT INTO follows(id, account_id, target_account_id) VALUES('2', 'carol', 'alice')`,
		`INSERT INTO follows(id, account_id, target_account_id) VALUES('3', 'erin', 'alice')`,
		`INSERT INTO follows(id, account_id, target_account_id, pending) VALUES('4', 'frank', 'alice', 1)`,
		`INSERT INTO follows(id, account_id, target_account_id) VALUES('5', 'dave', 'alice')`,
	} {
		_, err := db.Exec(stmt)
		assert.NoError(err)
	}

	assert.NoError(DeliverToFollowers(context.Background(), db, "alice", follow))

	var count int
	assert.NoError(db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE kind = ?`, DeliverJob).Scan(&count))
	assert.Equal(2, count)

	var config cfg.Config
	config.FillDefaults()

	var lock sync.Mutex
	var received []string
	q := queue.New(&config, db)
	queue.Handle(q, DeliverJob, func(_ context.Context, job *Delivery) error {
		lock.Lock()
		received = append(received, job.Inbox)
		lock.Unlock()
		return nil
	})

	_, err := q.RunOnce(context.Background())
	assert.NoError(err)
	assert.ElementsMatch([]string{"https://b.example/inbox", "https://c.example/users/erin/inbox"}, received)
}
