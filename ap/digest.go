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

package ap

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"
)

var (
	ErrDigestMismatch    = errors.New("digest mismatch")
	ErrUnsupportedDigest = errors.New("no supported digest algorithm")
)

type digestAlgorithm struct {
	Names []string
	New   func() hash.Hash
}

// strongest first
var digestAlgorithms = []digestAlgorithm{
	{[]string{"sha-512"}, sha512.New},
	{[]string{"sha-256"}, sha256.New},
	{[]string{"sha", "sha-1"}, sha1.New},
	{[]string{"md5"}, md5.New},
}

// Digest returns the value of a Digest header for a body, using a given algorithm.
func Digest(algorithm string, body []byte) (string, error) {
	for _, alg := range digestAlgorithms {
		for _, name := range alg.Names {
			if strings.EqualFold(name, algorithm) {
				h := alg.New()
				h.Write(body)
				return algorithm + "=" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedDigest, algorithm)
}

// ValidateDigest validates the value of a Digest header against a body.
//
// If the header contains multiple digests, only the strongest one is checked.
func ValidateDigest(body []byte, header string) error {
	offered := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		alg, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		offered[strings.ToLower(strings.TrimSpace(alg))] = strings.TrimSpace(value)
	}

	for _, alg := range digestAlgorithms {
		for _, name := range alg.Names {
			value, ok := offered[name]
			if !ok {
				continue
			}

			expected, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrDigestMismatch, err)
			}

			h := alg.New()
			h.Write(body)
			if subtle.ConstantTimeCompare(h.Sum(nil), expected) != 1 {
				return ErrDigestMismatch
			}

			return nil
		}
	}

	return ErrUnsupportedDigest
}
