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
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Params are the parameters of a Signature header.
type Params struct {
	KeyID     string
	Algorithm Algorithm
	Headers   []string
	Signature []byte
	Created   int64
	Expires   int64
}

// ParseHeader parses the value of a Signature header.
//
// The grammar is a comma-separated list of name=value pairs, where each value is either a quoted
// string or a bare decimal number. Unknown parameters are ignored.
func ParseHeader(s string) (*Params, error) {
	p := parser{s: s}

	attrs, err := p.params()
	if err != nil {
		return nil, err
	}

	var params Params

	params.KeyID = attrs["keyId"]
	if params.KeyID == "" {
		return nil, errors.New("keyId is unspecified")
	}

	if alg, ok := attrs["algorithm"]; ok {
		if params.Algorithm, err = ParseAlgorithm(alg); err != nil {
			return nil, err
		}
	} else {
		params.Algorithm = HS2019
	}

	if headers, ok := attrs["headers"]; ok {
		params.Headers = strings.Fields(strings.ToLower(headers))
		if len(params.Headers) == 0 {
			return nil, errors.New("empty headers list")
		}

		seen := make(map[string]struct{}, len(params.Headers))
		for _, h := range params.Headers {
			if _, dup := seen[h]; dup {
				return nil, errors.New("duplicate header: " + h)
			}
			seen[h] = struct{}{}
		}
	} else {
		params.Headers = []string{"date"}
	}

	signature := attrs["signature"]
	if signature == "" {
		return nil, errors.New("signature is unspecified")
	}

	if params.Signature, err = base64.StdEncoding.DecodeString(signature); err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}

	if params.Created, err = parseTimestamp(attrs, "created"); err != nil {
		return nil, err
	}

	if params.Expires, err = parseTimestamp(attrs, "expires"); err != nil {
		return nil, err
	}

	return &params, nil
}

func parseTimestamp(attrs map[string]string, name string) (int64, error) {
	s, ok := attrs[name]
	if !ok {
		return 0, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	return int64(f), nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

// params = param *( "," param )
func (p *parser) params() (map[string]string, error) {
	attrs := map[string]string{}

	for {
		p.skipSpace()

		name, value, err := p.param()
		if err != nil {
			return nil, err
		}

		if _, dup := attrs[name]; dup {
			return nil, errors.New("duplicate parameter: " + name)
		}
		attrs[name] = value

		p.skipSpace()
		if p.eof() {
			return attrs, nil
		}

		if err := p.expect(','); err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.eof() {
			return attrs, nil
		}
	}
}

// param = name "=" ( quoted / number )
func (p *parser) param() (string, string, error) {
	name := p.name()
	if name == "" {
		return "", "", fmt.Errorf("expected parameter name at %d", p.pos)
	}

	p.skipSpace()
	if err := p.expect('='); err != nil {
		return "", "", err
	}
	p.skipSpace()

	if p.peek() == '"' {
		value, err := p.quoted()
		return name, value, err
	}

	value, err := p.number()
	return name, value, err
}

func (p *parser) name() string {
	start := p.pos
	for !p.eof() {
		c := p.s[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func (p *parser) quoted() (string, error) {
	start := p.pos
	p.pos++

	end := strings.IndexByte(p.s[p.pos:], '"')
	if end == -1 {
		return "", fmt.Errorf("unterminated string at %d", start)
	}

	value := p.s[p.pos : p.pos+end]
	p.pos += end + 1
	return value, nil
}

// number = 1*DIGIT [ "." 1*DIGIT ]
func (p *parser) number() (string, error) {
	start := p.pos

	if !p.digits() {
		return "", fmt.Errorf("expected string or number at %d", start)
	}

	if p.peek() == '.' {
		p.pos++
		if !p.digits() {
			return "", fmt.Errorf("expected digit at %d", p.pos)
		}
	}

	return p.s[start:p.pos], nil
}

func (p *parser) digits() bool {
	start := p.pos
	for !p.eof() && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	return p.pos > start
}
