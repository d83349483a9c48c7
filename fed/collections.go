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
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/dbx"
)

const collectionPageSize = 50

func (l *Listener) handleFollowers(w http.ResponseWriter, r *http.Request) {
	l.handleCollection(
		w,
		r,
		"followers",
		`SELECT COALESCE(accounts.uri, 'https://' || ? || '/users/' || accounts.username) FROM follows JOIN accounts ON accounts.id = follows.account_id WHERE follows.target_account_id = ? AND follows.pending = 0 ORDER BY follows.created, follows.id LIMIT ? OFFSET ?`,
		`SELECT COUNT(*) FROM follows WHERE target_account_id = ? AND pending = 0`,
	)
}

func (l *Listener) handleFollowing(w http.ResponseWriter, r *http.Request) {
	l.handleCollection(
		w,
		r,
		"following",
		`SELECT COALESCE(accounts.uri, 'https://' || ? || '/users/' || accounts.username) FROM follows JOIN accounts ON accounts.id = follows.target_account_id WHERE follows.account_id = ? AND follows.pending = 0 ORDER BY follows.created, follows.id LIMIT ? OFFSET ?`,
		`SELECT COUNT(*) FROM follows WHERE account_id = ? AND pending = 0`,
	)
}

// handleCollection renders an OrderedCollection with a link to the first page, or a page if the page
// query parameter is specified.
func (l *Listener) handleCollection(w http.ResponseWriter, r *http.Request, name, itemsQuery, countQuery string) {
	username := r.PathValue("username")

	accountID, err := l.lookupLocal(r.Context(), username)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	id := fmt.Sprintf("%s/%s", l.localActorID(username), name)

	var total int64
	if err := l.DB.QueryRowContext(r.Context(), countQuery, accountID).Scan(&total); err != nil {
		slog.WarnContext(r.Context(), "Failed to count collection items", "collection", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	rawPage := r.URL.Query().Get("page")
	if rawPage == "" {
		c := &ap.Collection{
			Envelope:   ap.Envelope{Type: ap.OrderedCollection, ID: id},
			TotalItems: &total,
		}
		if total > 0 {
			c.First = ap.LinkTo[ap.Object](id + "?page=1")
		}

		writeObject(r.Context(), w, c)
		return
	}

	page, err := strconv.ParseInt(rawPage, 10, 32)
	if err != nil || page < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	items, err := dbx.QueryCollectCount[string](r.Context(), l.DB, collectionPageSize, itemsQuery, l.Domain, accountID, collectionPageSize, (page-1)*collectionPageSize)
	if err != nil {
		slog.WarnContext(r.Context(), "Failed to list collection items", "collection", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	c := &ap.Collection{
		Envelope: ap.Envelope{Type: ap.OrderedCollectionPage, ID: fmt.Sprintf("%s?page=%d", id, page)},
		PartOf:   id,
	}

	for _, item := range items {
		c.OrderedItems = append(c.OrderedItems, ap.LinkTo[ap.Object](item))
	}

	if page*collectionPageSize < total {
		c.Next = ap.LinkTo[ap.Object](fmt.Sprintf("%s?page=%d", id, page+1))
	}

	if page > 1 {
		c.Prev = ap.LinkTo[ap.Object](fmt.Sprintf("%s?page=%d", id, page-1))
	}

	writeObject(r.Context(), w, c)
}
