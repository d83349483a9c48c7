/*
Copyright 2024 - 2026 Dima Krasner

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

package httpsig

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/stretchr/testify/assert"
)

var (
	testKey  = mustGenerateKey()
	otherKey = mustGenerateKey()
)

func mustGenerateKey() *rsa.PrivateKey {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return priv
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("read failed")
}

func newSignedPost(t *testing.T, body []byte, now time.Time) *http.Request {
	req, err := http.NewRequest(http.MethodPost, "https://b.example/users/bob/inbox", bytes.NewReader(body))
	assert.NoError(t, err)

	req.Header.Set("Content-Type", ap.ContentType)
	assert.NoError(t, Sign(req, Key{ID: "https://a.example/users/alice#main-key", PrivateKey: testKey}, now))

	return req
}

func TestSign_HappyFlow(t *testing.T) {
	assert := assert.New(t)

	body := []byte(`{"id":"a"}`)
	now := time.Now()
	req := newSignedPost(t, body, now)

	assert.NoError(ap.ValidateDigest(body, req.Header.Get("Digest")))

	sig, err := Extract(req)
	assert.NoError(err)
	assert.NotNil(sig)

	assert.Equal("https://a.example/users/alice#main-key", sig.KeyID)
	assert.Equal(RSASHA256, sig.Algorithm)
	assert.Equal([]string{"(request-target)", "host", "date", "digest", "content-type"}, sig.Headers)
	assert.True(sig.Fresh(now, time.Minute))
	assert.True(sig.Verify(&testKey.PublicKey))
	assert.False(sig.Verify(&otherKey.PublicKey))
}

func TestSign_SigningString(t *testing.T) {
	body := []byte(`{"id":"a"}`)
	req := newSignedPost(t, body, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	sig, err := Extract(req)
	assert.NoError(t, err)

	digest, err := ap.Digest("SHA-256", body)
	assert.NoError(t, err)

	assert.Equal(
		t,
		"(request-target): post /users/bob/inbox\n"+
			"host: b.example\n"+
			"date: Mon, 01 Jan 2024 00:00:00 GMT\n"+
			"digest: "+digest+"\n"+
			"content-type: "+ap.ContentType,
		string(sig.Signed),
	)
}

func TestSign_Get(t *testing.T) {
	assert := assert.New(t)

	req, err := http.NewRequest(http.MethodGet, "https://b.example/users/bob?page=1", nil)
	assert.NoError(err)

	now := time.Now()
	assert.NoError(Sign(req, Key{ID: "https://a.example/actor#main-key", PrivateKey: testKey}, now))
	assert.Empty(req.Header.Get("Digest"))

	sig, err := Extract(req)
	assert.NoError(err)
	assert.Equal([]string{"(request-target)", "host", "date"}, sig.Headers)
	assert.Contains(string(sig.Signed), "(request-target): get /users/bob?page=1\n")
	assert.True(sig.Verify(&testKey.PublicKey))
}

func TestSign_MutatedHeaders(t *testing.T) {
	for _, mutate := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Host", "c.example") },
		func(r *http.Request) { r.Header.Set("Date", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)) },
		func(r *http.Request) { r.Header.Set("Digest", "SHA-256=AAAA") },
		func(r *http.Request) { r.Header.Set("Content-Type", "application/json") },
		func(r *http.Request) { r.Method = http.MethodPut },
		func(r *http.Request) { r.URL.Path = "/inbox" },
	} {
		req := newSignedPost(t, []byte(`{"id":"a"}`), time.Now())
		mutate(req)

		sig, err := Extract(req)
		assert.NoError(t, err)
		assert.False(t, sig.Verify(&testKey.PublicKey))
	}
}

func TestSign_NoKeyID(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader([]byte(`{}`)))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", ap.ContentType)

	assert.Error(t, Sign(req, Key{PrivateKey: testKey}, time.Now()))
}

func TestSign_WrongKeyType(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	assert.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader([]byte(`{}`)))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", ap.ContentType)

	assert.Error(t, Sign(req, Key{ID: "https://a.example/users/alice#main-key", PrivateKey: priv}, time.Now()))
}

func TestSign_MissingContentType(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader([]byte(`{}`)))
	assert.NoError(t, err)

	assert.Error(t, Sign(req, Key{ID: "https://a.example/users/alice#main-key", PrivateKey: testKey}, time.Now()))
}

func TestSign_ReadFailure(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://b.example/inbox", failingReader{})
	assert.NoError(t, err)
	req.Header.Set("Content-Type", ap.ContentType)

	assert.Error(t, Sign(req, Key{ID: "https://a.example/users/alice#main-key", PrivateKey: testKey}, time.Now()))
}

func TestSign_SignFailure(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader([]byte(`{}`)))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", ap.ContentType)

	assert.Error(t, Sign(req, Key{ID: "https://a.example/users/alice#main-key", PrivateKey: &rsa.PrivateKey{PublicKey: rsa.PublicKey{N: big.NewInt(1)}}}, time.Now()))
}
