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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dimkr/tusk/ap"
)

type webFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webFingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases"`
	Links   []webFingerLink `json:"links"`
}

func (l *Listener) handleWebFinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("No resource"))
		return
	}

	var username string

	if rest, ok := strings.CutPrefix(resource, "https://"+l.Domain+"/users/"); ok {
		username = rest
	} else {
		fields := strings.Split(strings.TrimPrefix(resource, "acct:"), "@")

		if len(fields) > 2 {
			slog.InfoContext(r.Context(), "Received invalid resource", "resource", resource)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Resource must contain zero or one @"))
			return
		}

		if len(fields) == 2 && fields[1] != l.Domain {
			slog.InfoContext(r.Context(), "Received invalid resource", "resource", resource, "domain", fields[1])
			w.WriteHeader(http.StatusNotFound)
			return
		}

		username = fields[0]
	}

	if _, err := l.lookupLocal(r.Context(), username); errors.Is(err, ErrNoSuchAccount) {
		slog.DebugContext(r.Context(), "Notifying that user does not exist", "username", username)
		w.WriteHeader(http.StatusNotFound)
		return
	} else if err != nil {
		slog.WarnContext(r.Context(), "Failed to look up user", "username", username, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	actorID := l.localActorID(username)

	j, err := json.Marshal(webFingerResponse{
		Subject: "acct:" + username + "@" + l.Domain,
		Aliases: []string{actorID},
		Links: []webFingerLink{
			{Rel: "self", Type: ap.ActivityContentType, Href: actorID},
			{Rel: "self", Type: ap.ContentType, Href: actorID},
		},
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/jrd+json; charset=utf-8")
	w.Write(j)
}
