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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
)

const (
	// ActivityStreams is the base vocabulary URI, which must be the first element of @context.
	ActivityStreams = "https://www.w3.org/ns/activitystreams"

	// ContentType is the media type of outgoing objects.
	ContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// ActivityContentType implies the ActivityStreams vocabulary without a @context check.
	ActivityContentType = "application/activity+json"
)

var (
	ErrNotObject      = errors.New("not a JSON object")
	ErrMissingType    = errors.New("missing type")
	ErrUnknownType    = errors.New("unknown type")
	ErrMissingContext = errors.New("missing or invalid @context")
)

var defaultContext = []any{
	ActivityStreams,
	"https://w3id.org/security/v1",
	map[string]any{
		"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
		"sensitive":                 "as:sensitive",
		"movedTo":                   map[string]string{"@id": "as:movedTo", "@type": "@id"},
		"Hashtag":                   "as:Hashtag",
		"toot":                      "http://joinmastodon.org/ns#",
		"featured":                  map[string]string{"@id": "toot:featured", "@type": "@id"},
		"Emoji":                     "toot:Emoji",
		"discoverable":              "toot:discoverable",
		"blurhash":                  "toot:blurhash",
		"votersCount":               "toot:votersCount",
		"schema":                    "http://schema.org#",
		"PropertyValue":             "schema:PropertyValue",
		"value":                     "schema:value",
	},
}

var contextPrefix []byte

func init() {
	ctx, err := json.Marshal(defaultContext)
	if err != nil {
		panic(err)
	}

	contextPrefix = append([]byte(`{"@context":`), ctx...)
	contextPrefix = append(contextPrefix, ',')
}

// Parse decodes an object received with a given Content-Type.
//
// Unless contentType is application/activity+json, the first element of @context must be the
// ActivityStreams vocabulary. The top-level object must have a known type, while nested objects of
// unknown types are decoded as [*Unknown].
func Parse(body []byte, contentType string) (Object, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrNotObject
	}

	var top struct {
		Context json.RawMessage `json:"@context"`
		Type    json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotObject, err)
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != ActivityContentType {
		if !hasContext(top.Context) {
			return nil, ErrMissingContext
		}
	}

	t, err := parseType(top.Type)
	if err != nil {
		return nil, err
	}

	newObject, ok := constructors[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	o := newObject()
	if err := json.Unmarshal(body, o); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}

	o.Common().Type = t
	return o, nil
}

// Serialize encodes an object and prepends a @context.
func Serialize(o Object) ([]byte, error) {
	j, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}

	if len(j) < 2 || j[0] != '{' {
		return nil, ErrNotObject
	}

	if len(j) == 2 {
		return append(contextPrefix[:len(contextPrefix)-1:len(contextPrefix)-1], '}'), nil
	}

	buf := make([]byte, 0, len(contextPrefix)+len(j)-1)
	buf = append(buf, contextPrefix...)
	return append(buf, j[1:]...), nil
}

func hasContext(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == ActivityStreams
	}

	var l []json.RawMessage
	if err := json.Unmarshal(raw, &l); err != nil || len(l) == 0 {
		return false
	}

	return json.Unmarshal(l[0], &s) == nil && s == ActivityStreams
}

// parseType accepts a string or a list of strings, and returns the first known type.
func parseType(raw json.RawMessage) (Type, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingType
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrMissingType
		}
		return Type(s), nil
	}

	var l []string
	if err := json.Unmarshal(raw, &l); err != nil || len(l) == 0 {
		return "", ErrMissingType
	}

	for _, s := range l {
		if Type(s).Known() {
			return Type(s), nil
		}
	}

	return Type(l[0]), nil
}

func decodeNested(b []byte) (Object, error) {
	var top struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, err
	}

	t, err := parseType(top.Type)
	if err != nil {
		return newUnknown(b)
	}

	newObject, ok := constructors[t]
	if !ok {
		return newUnknown(b)
	}

	o := newObject()
	if err := json.Unmarshal(b, o); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}

	o.Common().Type = t
	return o, nil
}
