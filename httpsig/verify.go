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
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	minKeyBits = 2048
	maxKeyBits = 8192
)

// ErrUnsignedHeader is returned when a signature of a request with a body does not cover a
// required header.
var ErrUnsignedHeader = errors.New("required header is not signed")

// bodyHeaders must be signed when a request has a body, so the body and its destination cannot be
// replaced.
var bodyHeaders = []string{"(request-target)", "host", "digest"}

// Signature is a parsed signature and the data it should sign.
type Signature struct {
	Params

	// Signed is the signing string, rebuilt from the request.
	Signed []byte

	// Date is the value of the Date header, if signed.
	Date time.Time

	// Host is the value of the Host header, if signed.
	Host string
}

// Extract parses the Signature header of a request and rebuilds the signed data.
//
// If the request has no signature, Extract returns nil and no error. The caller should obtain the
// public key associated with [Params.KeyID] and pass it to [Signature.Verify].
//
// Unless the request is a GET or a HEAD, the signature must cover (request-target), host and
// digest. Extract does not read the body: the caller must validate the Digest header against it.
func Extract(r *http.Request) (*Signature, error) {
	values := r.Header.Values("Signature")
	if len(values) == 0 {
		if auth := r.Header.Get("Authorization"); len(auth) > len("Signature ") && strings.EqualFold(auth[:len("Signature ")], "Signature ") {
			values = []string{auth[len("Signature "):]}
		} else {
			return nil, nil
		}
	}

	if len(values) > 1 {
		return nil, errors.New("more than one signature")
	}

	params, err := ParseHeader(values[0])
	if err != nil {
		return nil, err
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		for _, h := range bodyHeaders {
			if !slices.Contains(params.Headers, h) {
				return nil, fmt.Errorf("%w: %s", ErrUnsignedHeader, h)
			}
		}
	}

	signed, err := buildSignatureString(r, params.Headers, params)
	if err != nil {
		return nil, err
	}

	sig := Signature{Params: *params, Signed: signed}

	if slices.Contains(params.Headers, "host") {
		sig.Host = headerValues(r, "host")[0]
	}

	for _, h := range params.Headers {
		if h != "date" {
			continue
		}

		if sig.Date, err = http.ParseTime(r.Header.Get("Date")); err != nil {
			return nil, err
		}
		break
	}

	if sig.Date.IsZero() && params.Created > 0 {
		sig.Date = time.Unix(params.Created, 0)
	}

	return &sig, nil
}

// Fresh determines whether a signature is not too old or too new, and not expired.
func (s *Signature) Fresh(now time.Time, maxAge time.Duration) bool {
	if s.Expires > 0 && now.Unix() > s.Expires {
		return false
	}

	if s.Date.IsZero() {
		return false
	}

	return now.Sub(s.Date) <= maxAge && s.Date.Sub(now) <= maxAge
}

// Verify verifies the signature using a public key.
func (s *Signature) Verify(key any) bool {
	return Verify(key, s.Algorithm, s.Signed, s.Signature)
}

// Verify checks that sig is a valid signature of signed, made using the private counterpart of
// key and alg.
//
// RSA keys are accepted with rsa-sha1, rsa-sha256, rsa-sha512 and hs2019, while DSA keys are only
// accepted with dsa-sha1.
func Verify(key any, alg Algorithm, signed, sig []byte) bool {
	switch k := key.(type) {
	case *rsa.PublicKey:
		bits := k.N.BitLen()
		if bits < minKeyBits || bits > maxKeyBits {
			return false
		}

		switch alg {
		case RSASHA1:
			hash := sha1.Sum(signed)
			return rsa.VerifyPKCS1v15(k, crypto.SHA1, hash[:], sig) == nil

		case RSASHA256, HS2019:
			hash := sha256.Sum256(signed)
			return rsa.VerifyPKCS1v15(k, crypto.SHA256, hash[:], sig) == nil

		case RSASHA512:
			hash := sha512.Sum512(signed)
			return rsa.VerifyPKCS1v15(k, crypto.SHA512, hash[:], sig) == nil
		}

	case *dsa.PublicKey:
		if alg != DSASHA1 {
			return false
		}

		var rs struct {
			R, S *big.Int
		}
		if rest, err := asn1.Unmarshal(sig, &rs); err != nil || len(rest) > 0 {
			return false
		}

		hash := sha1.Sum(signed)
		return dsa.Verify(k, hash[:], rs.R, rs.S)
	}

	return false
}
