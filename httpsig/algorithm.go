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

package httpsig

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm is the value of the algorithm parameter.
type Algorithm string

const (
	RSASHA1   Algorithm = "rsa-sha1"
	RSASHA256 Algorithm = "rsa-sha256"
	RSASHA512 Algorithm = "rsa-sha512"
	DSASHA1   Algorithm = "dsa-sha1"

	// HS2019 means the algorithm is determined by the key. RSA keys are verified with SHA-256.
	HS2019 Algorithm = "hs2019"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrHMAC                 = errors.New("HMAC signatures cannot be verified with a public key")
)

// ParseAlgorithm parses the algorithm parameter.
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(s)))

	switch alg {
	case RSASHA1, RSASHA256, RSASHA512, DSASHA1, HS2019:
		return alg, nil
	}

	if strings.HasPrefix(string(alg), "hmac-") {
		return "", fmt.Errorf("%w: %s", ErrHMAC, s)
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, s)
}
