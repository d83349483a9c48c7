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
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/data"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/media"
	"github.com/dimkr/tusk/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// testClient serves each response once, and panics if a request has no response.
type testClient struct {
	sync.Mutex
	data map[string]*http.Response
}

func (c *testClient) Do(r *http.Request) (*http.Response, error) {
	url := r.URL.String()

	c.Lock()
	defer c.Unlock()

	resp, ok := c.data[url]
	if !ok {
		panic("No response for " + url)
	}
	delete(c.data, url)

	return resp, nil
}

func (c *testClient) serve(url string, resp *http.Response) {
	c.Lock()
	c.data[url] = resp
	c.Unlock()
}

func (c *testClient) serveObject(t *testing.T, o ap.Object) {
	body, err := ap.Serialize(o)
	if err != nil {
		t.Fatal(err)
	}

	c.serve(o.Common().ID, newResponse(http.StatusOK, ap.ActivityContentType, body))
}

func (c *testClient) pending() int {
	c.Lock()
	defer c.Unlock()
	return len(c.data)
}

func newResponse(statusCode int, contentType string, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    statusCode,
		Header:        http.Header{"Content-Type": []string{contentType}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}

func notFound() *http.Response {
	return newResponse(http.StatusNotFound, "text/plain", nil)
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

func newTestSyncer(t *testing.T) (*Syncer, *testClient) {
	var config cfg.Config
	config.FillDefaults()
	config.MediaDir = t.TempDir()

	client := &testClient{data: map[string]*http.Response{}}

	return NewSyncer(
		"a.example",
		&config,
		newTestDB(t),
		fed.NewResolver(&config, client, nil),
		media.NewStore(&config, client, nil),
	), client
}

var testPublicKey = func() string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	pem, err := data.EncodePublicKey(&key.PublicKey)
	if err != nil {
		panic(err)
	}

	return pem
}()

func pngResponse(t *testing.T) *http.Response {
	var b bytes.Buffer
	if err := png.Encode(&b, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return newResponse(http.StatusOK, "image/png", b.Bytes())
}

func newActor(id string) *ap.Actor {
	return &ap.Actor{
		Envelope: ap.Envelope{
			Type: ap.Person,
			ID:   id,
		},
		PreferredUsername: "bob",
		Inbox:             id + "/inbox",
		PublicKey: ap.Array[ap.Ref[*ap.PublicKey]]{
			ap.Inline(&ap.PublicKey{ID: id + "#main-key", Owner: id, PublicKeyPem: testPublicKey}),
		},
	}
}

func bob() *ap.Actor {
	actor := newActor("https://b.example/users/bob")
	actor.Name = "Bob"
	actor.Summary = "<p>hi</p>"
	actor.Published = ap.Time{Time: time.Date(2022, time.November, 5, 0, 0, 0, 0, time.UTC)}
	actor.URL = ap.Array[ap.Ref[ap.Object]]{ap.LinkTo[ap.Object]("https://b.example/@bob")}
	actor.Outbox = actor.ID + "/outbox"
	actor.Endpoints = ap.Inline(&ap.Endpoints{SharedInbox: "https://b.example/inbox"})
	actor.ManuallyApprovesFollowers = true
	actor.Icon = ap.Inline[ap.Object](&ap.Content{
		Envelope: ap.Envelope{
			Type:      ap.Image,
			MediaType: "image/png",
			URL:       ap.Array[ap.Ref[ap.Object]]{ap.LinkTo[ap.Object]("https://b.example/avatar.png")},
		},
	})
	actor.Attachment = ap.Array[ap.Ref[ap.Object]]{
		ap.Inline[ap.Object](&ap.PropertyValue{Envelope: ap.Envelope{Type: ap.PropertyValueType, Name: "Website"}, Value: "bob.example"}),
		ap.Inline[ap.Object](&ap.PropertyValue{Envelope: ap.Envelope{Type: ap.PropertyValueType, Name: "Pronouns"}, Value: "he/him"}),
	}
	return actor
}

func insertLocal(t *testing.T, db *sql.DB, id, username string) {
	if _, err := db.Exec(`INSERT INTO accounts(id, username, domain, inbox) VALUES(?, ?, 'a.example', ?)`, id, username, "https://a.example/users/"+username+"/inbox"); err != nil {
		t.Fatal(err)
	}
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}
