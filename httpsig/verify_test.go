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
	"crypto"
	"crypto/dsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newUnsignedGet(t *testing.T) *http.Request {
	req, err := http.NewRequest(http.MethodGet, "https://b.example/users/bob", nil)
	assert.NoError(t, err)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return req
}

func TestExtract_NoSignature(t *testing.T) {
	sig, err := Extract(newUnsignedGet(t))
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestExtract_TwoSignatures(t *testing.T) {
	req := newUnsignedGet(t)
	req.Header.Add("Signature", `keyId="a",signature="YQ=="`)
	req.Header.Add("Signature", `keyId="b",signature="YQ=="`)

	_, err := Extract(req)
	assert.Error(t, err)
}

func TestExtract_Unparsable(t *testing.T) {
	req := newUnsignedGet(t)
	req.Header.Set("Signature", `keyId="a`)

	_, err := Extract(req)
	assert.Error(t, err)
}

func TestExtract_HMAC(t *testing.T) {
	req := newUnsignedGet(t)
	req.Header.Set("Signature", `keyId="a",algorithm="hmac-sha256",signature="YQ=="`)

	_, err := Extract(req)
	assert.ErrorIs(t, err, ErrHMAC)
}

func TestExtract_MissingSignedHeader(t *testing.T) {
	req := newUnsignedGet(t)
	req.Header.Set("Signature", `keyId="a",headers="(request-target) host date digest",signature="YQ=="`)

	_, err := Extract(req)
	assert.Error(t, err)
}

func TestExtract_PostWithoutDigest(t *testing.T) {
	for _, headers := range []string{
		"(request-target) host date",
		"host date digest",
		"(request-target) date digest",
	} {
		req := newUnsignedGet(t)
		req.Method = http.MethodPost
		req.Header.Set("Digest", "SHA-256=AAAA")
		req.Header.Set("Signature", `keyId="a",headers="`+headers+`",signature="YQ=="`)

		_, err := Extract(req)
		assert.ErrorIs(t, err, ErrUnsignedHeader, headers)
	}
}

func TestExtract_Host(t *testing.T) {
	req := newSignedPost(t, []byte(`{"id":"a"}`), time.Now())

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.Equal(t, "b.example", sig.Host)
}

func TestExtract_DefaultHeaders(t *testing.T) {
	assert := assert.New(t)

	req := newUnsignedGet(t)
	req.Header.Set("Signature", `keyId="a",signature="YQ=="`)

	sig, err := Extract(req)
	assert.NoError(err)
	assert.Equal([]string{"date"}, sig.Headers)
	assert.Equal(HS2019, sig.Algorithm)
	assert.Equal("date: "+req.Header.Get("Date"), string(sig.Signed))
}

func TestExtract_AuthorizationHeader(t *testing.T) {
	req := newUnsignedGet(t)
	req.Header.Set("Authorization", `Signature keyId="a",signature="YQ=="`)

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.Equal(t, "a", sig.KeyID)
}

func TestExtract_Created(t *testing.T) {
	assert := assert.New(t)

	created := time.Now().Unix()

	req := newUnsignedGet(t)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="a",algorithm="hs2019",created=%d,expires=%d.5,headers="(request-target) (created)",signature="YQ=="`, created, created+60))

	sig, err := Extract(req)
	assert.NoError(err)
	assert.Equal(fmt.Sprintf("(request-target): get /users/bob\n(created): %d", created), string(sig.Signed))
	assert.Equal(time.Unix(created, 0), sig.Date)
	assert.True(sig.Fresh(time.Now(), time.Minute))
	assert.False(sig.Fresh(time.Unix(created+61, 0), time.Hour))
}

func TestFresh_TooOld(t *testing.T) {
	now := time.Now()
	req := newSignedPost(t, []byte(`{"id":"a"}`), now.Add(-time.Minute*2))

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.False(t, sig.Fresh(now, time.Minute))
}

func TestFresh_TooNew(t *testing.T) {
	now := time.Now()
	req := newSignedPost(t, []byte(`{"id":"a"}`), now.Add(time.Minute*2))

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.False(t, sig.Fresh(now, time.Minute))
}

func TestVerify_RSAAlgorithms(t *testing.T) {
	assert := assert.New(t)

	signed := []byte("date: Mon, 01 Jan 2024 00:00:00 GMT")

	sha1Hash := sha1.Sum(signed)
	sha1Sig, err := rsa.SignPKCS1v15(rand.Reader, testKey, crypto.SHA1, sha1Hash[:])
	assert.NoError(err)

	sha512Hash := sha512.Sum512(signed)
	sha512Sig, err := rsa.SignPKCS1v15(rand.Reader, testKey, crypto.SHA512, sha512Hash[:])
	assert.NoError(err)

	assert.True(Verify(&testKey.PublicKey, RSASHA1, signed, sha1Sig))
	assert.True(Verify(&testKey.PublicKey, RSASHA512, signed, sha512Sig))

	assert.False(Verify(&testKey.PublicKey, RSASHA256, signed, sha1Sig))
	assert.False(Verify(&testKey.PublicKey, RSASHA512, signed, sha1Sig))
	assert.False(Verify(&otherKey.PublicKey, RSASHA1, signed, sha1Sig))
	assert.False(Verify(&testKey.PublicKey, DSASHA1, signed, sha1Sig))
}

func TestVerify_DSA(t *testing.T) {
	assert := assert.New(t)

	var priv dsa.PrivateKey
	assert.NoError(dsa.GenerateParameters(&priv.Parameters, rand.Reader, dsa.L1024N160))
	assert.NoError(dsa.GenerateKey(&priv, rand.Reader))

	signed := []byte("(request-target): post /inbox\ndate: Mon, 01 Jan 2024 00:00:00 GMT")
	hash := sha1.Sum(signed)

	r, s, err := dsa.Sign(rand.Reader, &priv, hash[:])
	assert.NoError(err)

	sig, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	assert.NoError(err)

	assert.True(Verify(&priv.PublicKey, DSASHA1, signed, sig))
	assert.False(Verify(&priv.PublicKey, RSASHA256, signed, sig))
	assert.False(Verify(&priv.PublicKey, DSASHA1, append([]byte("x"), signed...), sig))
	assert.False(Verify(&priv.PublicKey, DSASHA1, signed, []byte("garbage")))
}

func TestVerify_HS2019(t *testing.T) {
	req := newSignedPost(t, []byte(`{"id":"a"}`), time.Now())

	sig, err := Extract(req)
	assert.NoError(t, err)

	sig.Algorithm = HS2019
	assert.True(t, sig.Verify(&testKey.PublicKey))
}

func TestVerify_SmallKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(t, err)

	req := newUnsignedGet(t)
	assert.NoError(t, Sign(req, Key{ID: "a", PrivateKey: priv}, time.Now()))

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.False(t, sig.Verify(&priv.PublicKey))
}

func TestVerify_WrongKeyType(t *testing.T) {
	req := newSignedPost(t, []byte(`{"id":"a"}`), time.Now())

	sig, err := Extract(req)
	assert.NoError(t, err)
	assert.False(t, sig.Verify(testKey))
	assert.False(t, sig.Verify(nil))
}

func TestVerify_WrongSignature(t *testing.T) {
	req := newSignedPost(t, []byte(`{"id":"a"}`), time.Now())

	sig, err := Extract(req)
	assert.NoError(t, err)

	sig.Signature, err = base64.StdEncoding.DecodeString("YQ==")
	assert.NoError(t, err)
	assert.False(t, sig.Verify(&testKey.PublicKey))
}
