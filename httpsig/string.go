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
	"errors"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

func headerValues(r *http.Request, h string) []string {
	if h == "host" {
		if host := r.Header.Get("Host"); host != "" {
			return []string{host}
		}
		if r.Host != "" {
			return []string{r.Host}
		}
		if r.URL != nil && r.URL.Host != "" {
			return []string{r.URL.Host}
		}
		return nil
	}

	return r.Header[textproto.CanonicalMIMEHeaderKey(h)]
}

// buildSignatureString builds the signed data by replaying the header selection of a signature.
func buildSignatureString(r *http.Request, headers []string, params *Params) ([]byte, error) {
	var b strings.Builder

	for i, h := range headers {
		if i > 0 {
			b.WriteByte('\n')
		}

		b.WriteString(h)
		b.WriteString(": ")

		switch h {
		case "(request-target)":
			b.WriteString(strings.ToLower(r.Method))
			b.WriteByte(' ')
			b.WriteString(r.URL.RequestURI())

		case "(created)", "(expires)":
			var v int64
			if params != nil && h == "(created)" {
				v = params.Created
			} else if params != nil {
				v = params.Expires
			}
			if v == 0 {
				return nil, errors.New("unspecified parameter: " + h)
			}
			b.WriteString(strconv.FormatInt(v, 10))

		default:
			if h[0] == '(' {
				return nil, errors.New("unsupported header: " + h)
			}

			values := headerValues(r, h)
			if len(values) == 0 {
				return nil, errors.New("unspecified header: " + h)
			}

			for j, v := range values {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(strings.TrimSpace(v))
			}
		}
	}

	return []byte(b.String()), nil
}
