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

package fed

import (
	"context"
	"net/http"
	"testing"

	"github.com/dimkr/tusk/ap"
	"github.com/stretchr/testify/assert"
)

const (
	followersPage1 = `{
		"id": "https://b.example/users/bob/followers?page=1",
		"type": "OrderedCollectionPage",
		"partOf": "https://b.example/users/bob/followers",
		"next": "https://b.example/users/bob/followers?page=2",
		"orderedItems": ["https://c.example/users/a", "https://c.example/users/b"]
	}`

	followersPage2 = `{
		"id": "https://b.example/users/bob/followers?page=2",
		"type": "OrderedCollectionPage",
		"partOf": "https://b.example/users/bob/followers",
		"orderedItems": ["https://c.example/users/c"]
	}`
)

func followers(total int64) *ap.Collection {
	return &ap.Collection{
		Envelope:   ap.Envelope{Type: ap.OrderedCollection, ID: "https://b.example/users/bob/followers"},
		TotalItems: &total,
		First:      ap.LinkTo[ap.Object]("https://b.example/users/bob/followers?page=1"),
	}
}

func drain(p *Paginator) []string {
	var ids []string
	for item := range p.All() {
		ids = append(ids, item.ID())
	}
	return ids
}

func TestPaginate_InlineItems(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(map[string]testResponse{})

	p := Paginate(
		context.Background(),
		newTestResolver(&client),
		&ap.Collection{
			Envelope: ap.Envelope{Type: ap.CollectionType},
			Items: ap.Array[ap.Ref[ap.Object]]{
				ap.LinkTo[ap.Object]("https://c.example/users/a"),
				ap.Inline[ap.Object](&ap.Actor{Envelope: ap.Envelope{Type: ap.Person, ID: "https://c.example/users/b"}}),
			},
		},
	)

	lower, _, ok := p.SizeHint()
	assert.Equal(2, lower)
	assert.False(ok)

	assert.Equal([]string{"https://c.example/users/a", "https://c.example/users/b"}, drain(p))
}

func TestPaginate_Pages(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	p := Paginate(context.Background(), newTestResolver(&client), followers(3))

	lower, upper, ok := p.SizeHint()
	assert.Equal(0, lower)
	assert.Equal(3, upper)
	assert.True(ok)

	assert.Equal([]string{"https://c.example/users/a", "https://c.example/users/b", "https://c.example/users/c"}, drain(p))
	assert.Empty(client.Data)
}

func TestPaginate_SinglePass(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	p := Paginate(context.Background(), newTestResolver(&client), followers(3))

	for item := range p.All() {
		assert.Equal("https://c.example/users/a", item.ID())
		break
	}

	// the second page is fetched only when needed
	assert.Len(client.Data, 1)

	lower, _, _ := p.SizeHint()
	assert.Equal(1, lower)

	assert.Empty(drain(p))
}

func TestPaginate_DuplicateItems(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {
			Response: newTestResponse(
				http.StatusOK,
				`{"id":"https://b.example/users/bob/followers?page=2","type":"OrderedCollectionPage","orderedItems":["https://c.example/users/b","https://c.example/users/c"]}`,
			),
		},
	})

	assert.Equal(
		t,
		[]string{"https://c.example/users/a", "https://c.example/users/b", "https://c.example/users/b", "https://c.example/users/c"},
		drain(Paginate(context.Background(), newTestResolver(&client), followers(4))),
	)
}

func TestPaginate_Cycle(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {
			Response: newTestResponse(
				http.StatusOK,
				`{"id":"https://b.example/users/bob/followers?page=2","type":"OrderedCollectionPage","next":"https://b.example/users/bob/followers?page=1","orderedItems":["https://c.example/users/c"]}`,
			),
		},
	})

	assert.Equal(
		t,
		[]string{"https://c.example/users/a", "https://c.example/users/b", "https://c.example/users/c"},
		drain(Paginate(context.Background(), newTestResolver(&client), followers(3))),
	)
}

func TestPaginate_FailedPage(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusInternalServerError, "")},
	})

	assert.Equal(
		t,
		[]string{"https://c.example/users/a", "https://c.example/users/b"},
		drain(Paginate(context.Background(), newTestResolver(&client), followers(3))),
	)
}

func TestPaginate_EmptyPage(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {
			Response: newTestResponse(
				http.StatusOK,
				`{"id":"https://b.example/users/bob/followers?page=1","type":"OrderedCollectionPage","next":"https://b.example/users/bob/followers?page=2","orderedItems":[]}`,
			),
		},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	assert.Equal(
		t,
		[]string{"https://c.example/users/c"},
		drain(Paginate(context.Background(), newTestResolver(&client), followers(1))),
	)
}

func TestPaginate_EmptyCollection(t *testing.T) {
	client := newTestClient(map[string]testResponse{})

	total := int64(0)
	p := Paginate(
		context.Background(),
		newTestResolver(&client),
		&ap.Collection{Envelope: ap.Envelope{Type: ap.OrderedCollection}, TotalItems: &total},
	)

	assert.Empty(t, drain(p))
}

func TestPaginate_LinkToPage(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	c := followers(3)
	c.First = ap.Inline[ap.Object](&ap.Link{Envelope: ap.Envelope{Type: ap.LinkType}, Href: "https://b.example/users/bob/followers?page=1"})

	assert.Equal(
		t,
		[]string{"https://c.example/users/a", "https://c.example/users/b", "https://c.example/users/c"},
		drain(Paginate(context.Background(), newTestResolver(&client), c)),
	)
}

func TestPaginate_FetchedLink(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers/first": {
			Response: newTestResponse(http.StatusOK, `{"type":"Link","href":"https://b.example/users/bob/followers?page=1"}`),
		},
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	c := followers(3)
	c.First = ap.LinkTo[ap.Object]("https://b.example/users/bob/followers/first")

	assert.Len(t, drain(Paginate(context.Background(), newTestResolver(&client), c)), 3)
}

func TestPaginate_InlineFirstPage(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=2": {Response: newTestResponse(http.StatusOK, followersPage2)},
	})

	c := followers(3)
	c.First = ap.Inline[ap.Object](&ap.Collection{
		Envelope:     ap.Envelope{Type: ap.OrderedCollectionPage, ID: "https://b.example/users/bob/followers?page=1"},
		OrderedItems: ap.Array[ap.Ref[ap.Object]]{ap.LinkTo[ap.Object]("https://c.example/users/a")},
		Next:         ap.LinkTo[ap.Object]("https://b.example/users/bob/followers?page=2"),
	})

	assert.Equal(
		t,
		[]string{"https://c.example/users/a", "https://c.example/users/c"},
		drain(Paginate(context.Background(), newTestResolver(&client), c)),
	)
}

func TestPaginate_PageLimit(t *testing.T) {
	client := newTestClient(map[string]testResponse{
		"https://b.example/users/bob/followers?page=1": {Response: newTestResponse(http.StatusOK, followersPage1)},
	})

	r := newTestResolver(&client)
	r.Config.MaxCollectionPages = 1

	assert.Len(t, drain(Paginate(context.Background(), r, followers(3))), 2)
}

func TestPaginate_NegativeTotal(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(map[string]testResponse{})

	lower, upper, ok := Paginate(context.Background(), newTestResolver(&client), followers(-5)).SizeHint()
	assert.Equal(0, lower)
	assert.Equal(0, upper)
	assert.True(ok)
}
