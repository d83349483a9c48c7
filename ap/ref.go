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
)

// Ref is a property value that is either a URI or an inlined T, never both.
//
// The zero value is an absent property.
type Ref[T any] struct {
	id     string
	value  T
	inline bool
}

// LinkTo returns a reference to a URI.
func LinkTo[T any](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Inline returns a reference that holds a value.
func Inline[T any](v T) Ref[T] {
	return Ref[T]{value: v, inline: true}
}

// IsZero determines whether the property is absent.
func (r Ref[T]) IsZero() bool {
	return !r.inline && r.id == ""
}

// IsInline determines whether the reference holds a value.
func (r Ref[T]) IsInline() bool {
	return r.inline
}

// Value returns the inlined value, if any.
func (r Ref[T]) Value() (T, bool) {
	return r.value, r.inline
}

// ID returns the URI of the referenced object.
//
// If the value is inlined, ID returns the value's "id" property or an empty string if it has none.
func (r Ref[T]) ID() string {
	if !r.inline {
		return r.id
	}

	switch v := any(r.value).(type) {
	case Object:
		if v != nil {
			return v.Common().ID
		}
	case *PublicKey:
		if v != nil {
			return v.ID
		}
	}

	return ""
}

func (r *Ref[T]) UnmarshalJSON(b []byte) error {
	*r = Ref[T]{}

	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.id)
	}

	// some servers send a list where a single value is expected, like PeerTube's attributedTo
	if len(b) > 0 && b[0] == '[' {
		var l []json.RawMessage
		if err := json.Unmarshal(b, &l); err != nil {
			return err
		}
		if len(l) == 0 {
			return nil
		}
		return r.UnmarshalJSON(l[0])
	}

	if p, ok := any(&r.value).(*Object); ok {
		o, err := decodeNested(b)
		if err != nil {
			return err
		}
		*p = o
	} else if err := json.Unmarshal(b, &r.value); err != nil {
		return err
	}

	r.inline = true
	return nil
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.inline {
		return json.Marshal(r.value)
	}

	if r.id == "" {
		return []byte("null"), nil
	}

	return json.Marshal(r.id)
}
