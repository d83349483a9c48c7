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

// Package httpsig implements HTTP Signatures, as used by ActivityPub servers.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dimkr/tusk/ap"
)

// Key is a private key used to sign requests.
type Key struct {
	ID         string
	PrivateKey any
}

var (
	getHeaders  = []string{"(request-target)", "host", "date"}
	postHeaders = []string{"(request-target)", "host", "date", "digest", "content-type"}
)

// Sign adds Date, Host, Digest (if the request has a body) and Signature headers to an outgoing
// request.
func Sign(r *http.Request, key Key, now time.Time) error {
	if key.ID == "" {
		return errors.New("empty key ID")
	}

	rsaKey, ok := key.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("unsupported private key type: %T", key.PrivateKey)
	}

	headers := getHeaders
	if r.Method == http.MethodPost {
		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				return err
			}
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		digest, err := ap.Digest("SHA-256", body)
		if err != nil {
			return err
		}
		r.Header.Set("Digest", digest)

		headers = postHeaders
	}

	r.Header.Set("Date", now.UTC().Format(http.TimeFormat))
	r.Header.Set("Host", r.URL.Host)

	s, err := buildSignatureString(r, headers, nil)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(s)
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, hash[:])
	if err != nil {
		return err
	}

	r.Header.Set(
		"Signature",
		fmt.Sprintf(
			`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
			key.ID,
			RSASHA256,
			strings.Join(headers, " "),
			base64.StdEncoding.EncodeToString(sig),
		),
	)

	return nil
}
