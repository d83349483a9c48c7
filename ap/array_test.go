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

package ap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type tagHolder struct {
	ID  string             `json:"id"`
	Tag Array[Ref[Object]] `json:"tag,omitzero"`
}

func TestArrayUnmarshal_Empty(t *testing.T) {
	var o tagHolder
	assert.NoError(t, json.Unmarshal([]byte(`{"id":"a","tag":[]}`), &o))
	assert.Nil(t, o.Tag)
}

func TestArrayUnmarshal_Single(t *testing.T) {
	assert := assert.New(t)

	var o tagHolder
	assert.NoError(json.Unmarshal([]byte(`{"id":"a","tag":{"type":"Hashtag","name":"#b","href":"https://a/tags/b"}}`), &o))
	assert.Len(o.Tag, 1)

	v, ok := o.Tag[0].Value()
	assert.True(ok)

	tag, ok := v.(*Link)
	assert.True(ok)
	assert.Equal(Hashtag, tag.Type)
	assert.Equal("#b", tag.Name)
	assert.Equal("https://a/tags/b", tag.Href)
}

func TestArrayUnmarshal_Mixed(t *testing.T) {
	assert := assert.New(t)

	var o tagHolder
	assert.NoError(json.Unmarshal([]byte(`{"id":"a","tag":["https://a/tags/b",{"type":"Emoji","name":":c:"}]}`), &o))
	assert.Len(o.Tag, 2)

	assert.False(o.Tag[0].IsInline())
	assert.Equal("https://a/tags/b", o.Tag[0].ID())

	v, ok := o.Tag[1].Value()
	assert.True(ok)

	emoji, ok := v.(*Content)
	assert.True(ok)
	assert.Equal(Emoji, emoji.Type)
}

func TestArrayUnmarshal_SingleString(t *testing.T) {
	var o struct {
		Rel Array[string] `json:"rel"`
	}
	assert.NoError(t, json.Unmarshal([]byte(`{"rel":"alternate"}`), &o))
	assert.Equal(t, Array[string]{"alternate"}, o.Rel)
}

func TestArrayUnmarshal_Null(t *testing.T) {
	var o tagHolder
	assert.NoError(t, json.Unmarshal([]byte(`{"id":"a","tag":null}`), &o))
	assert.Nil(t, o.Tag)
}

func TestArrayUnmarshal_WrongType(t *testing.T) {
	var o struct {
		Rel Array[string] `json:"rel"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"rel":1}`), &o))
}

func TestArrayMarshal_Null(t *testing.T) {
	o := struct {
		Rel Array[string] `json:"rel"`
	}{}
	j, err := json.Marshal(o)
	assert.NoError(t, err)
	assert.Equal(t, `{"rel":[]}`, string(j))
}

func TestArrayMarshal_EmptyOmitZero(t *testing.T) {
	j, err := json.Marshal(tagHolder{ID: "a", Tag: Array[Ref[Object]]{}})
	assert.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(j))
}

func TestArrayMarshal_Refs(t *testing.T) {
	j, err := json.Marshal(tagHolder{
		ID: "a",
		Tag: Array[Ref[Object]]{
			LinkTo[Object]("https://a/tags/b"),
			Inline[Object](&Link{Envelope: Envelope{Type: Mention, Name: "@c"}, Href: "https://c"}),
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, `{"id":"a","tag":["https://a/tags/b",{"type":"Mention","name":"@c","href":"https://c"}]}`, string(j))
}
