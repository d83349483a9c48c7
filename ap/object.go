/*
Copyright 2023 - 2026 Dima Krasner

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

// Package ap implements the ActivityPub wire object model.
package ap

import (
	"bytes"
	"encoding/json"
)

// Public is the special audience of public posts.
const Public = "https://www.w3.org/ns/activitystreams#Public"

// Object is one of the variants of the object model: [*Generic], [*Activity], [*Actor], [*Content],
// [*Collection], [*Link], [*Tombstone], [*PropertyValue] or [*Unknown].
type Object interface {
	Common() *Envelope
}

// Envelope contains the properties shared by all objects.
type Envelope struct {
	Type         Type               `json:"type"`
	ID           string             `json:"id,omitempty"`
	AttributedTo Ref[Object]        `json:"attributedTo,omitzero"`
	To           Audience           `json:"to,omitzero"`
	CC           Audience           `json:"cc,omitzero"`
	BTo          Audience           `json:"bto,omitzero"`
	BCC          Audience           `json:"bcc,omitzero"`
	Published    Time               `json:"published,omitzero"`
	Updated      Time               `json:"updated,omitzero"`
	Name         string             `json:"name,omitempty"`
	Content      string             `json:"content,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	URL          Array[Ref[Object]] `json:"url,omitzero"`
	MediaType    string             `json:"mediaType,omitempty"`
	Width        int64              `json:"width,omitempty"`
	Height       int64              `json:"height,omitempty"`
	InReplyTo    Ref[Object]        `json:"inReplyTo,omitzero"`
	Attachment   Array[Ref[Object]] `json:"attachment,omitzero"`
	Tag          Array[Ref[Object]] `json:"tag,omitzero"`
	Icon         Ref[Object]        `json:"icon,omitzero"`
	Image        Ref[Object]        `json:"image,omitzero"`
	Sensitive    bool               `json:"sensitive,omitempty"`
}

// Common returns the shared properties.
func (e *Envelope) Common() *Envelope {
	return e
}

// CanonicalURL returns the first URL of an object, or its ID if it has no URL.
func (e *Envelope) CanonicalURL() string {
	for _, u := range e.URL {
		if v, ok := u.Value(); ok {
			if l, ok := v.(*Link); ok && l.Href != "" {
				return l.Href
			}
			continue
		}

		if id := u.ID(); id != "" {
			return id
		}
	}

	return e.ID
}

// IsPublic determines whether an object is addressed to everyone.
func (e *Envelope) IsPublic() bool {
	return e.To.IsPublic() || e.CC.IsPublic()
}

// Generic is an object of type Object.
type Generic struct {
	Envelope
}

// Content is a note, an article, an image or any other kind of content.
type Content struct {
	Envelope
	Duration     string             `json:"duration,omitempty"`
	StartTime    Time               `json:"startTime,omitzero"`
	EndTime      Time               `json:"endTime,omitzero"`
	OneOf        Array[Ref[Object]] `json:"oneOf,omitzero"`
	AnyOf        Array[Ref[Object]] `json:"anyOf,omitzero"`
	VotersCount  int64              `json:"votersCount,omitempty"`
	Conversation string             `json:"conversation,omitempty"`
	Blurhash     string             `json:"blurhash,omitempty"`
}

// Link is a link, a mention or a hashtag.
type Link struct {
	Envelope
	Href     string        `json:"href,omitempty"`
	Rel      Array[string] `json:"rel,omitzero"`
	HrefLang string        `json:"hreflang,omitempty"`
}

// Tombstone is a placeholder for a deleted object.
type Tombstone struct {
	Envelope
	FormerType Type `json:"formerType,omitempty"`
	Deleted    Time `json:"deleted,omitzero"`
}

// PropertyValue is a profile metadata field.
type PropertyValue struct {
	Envelope
	Value string `json:"value"`
}

// Unknown is a nested object of an unsupported type.
//
// Its properties are preserved as-is.
type Unknown struct {
	Envelope
	Raw json.RawMessage
}

func (u *Unknown) MarshalJSON() ([]byte, error) {
	return u.Raw, nil
}

func newUnknown(b []byte) (*Unknown, error) {
	var u Unknown
	if err := json.Unmarshal(b, &u.Envelope); err != nil {
		// keep what identifies the object if other properties are malformed
		var id struct {
			Type Type   `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(b, &id); err != nil {
			return nil, err
		}
		u.Envelope = Envelope{Type: id.Type, ID: id.ID}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	u.Raw = buf.Bytes()

	return &u, nil
}
