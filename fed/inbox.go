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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/httpsig"
	"github.com/dimkr/tusk/logcontext"
	"github.com/dimkr/tusk/queue"
	"github.com/gowebpki/jcs"
)

// InboxJob is the job kind of an [Incoming] activity.
const InboxJob = "inbox"

// Incoming is an activity received by an inbox, together with its signature.
type Incoming struct {
	// Recipient is the ID of the local account that owns the inbox, or empty for the shared inbox.
	Recipient string
	Activity  []byte

	KeyID     string
	Algorithm string
	Signature []byte
	Signed    []byte
	Date      int64
	Expires   int64
}

var acceptedContentTypes = map[string]struct{}{
	"application/json":     {},
	"application/ld+json":  {},
	ap.ActivityContentType: {},
}

func (l *Listener) handleSharedInbox(w http.ResponseWriter, r *http.Request) {
	l.receive(w, r, "")
}

func (l *Listener) handleInbox(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	recipient, err := l.lookupLocal(r.Context(), username)
	if errors.Is(err, ErrNoSuchAccount) {
		slog.DebugContext(r.Context(), "Receiving user does not exist", "username", username)
		w.WriteHeader(http.StatusNotFound)
		return
	} else if err != nil {
		slog.WarnContext(r.Context(), "Failed to check if receiving user exists", "username", username, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	l.receive(w, r, recipient)
}

// dedupKey identifies an activity regardless of whitespace and key order.
func dedupKey(body []byte) string {
	canonical, err := jcs.Transform(body)
	if err != nil {
		canonical = body
	}

	hash := sha256.Sum256(canonical)
	return InboxJob + " " + hex.EncodeToString(hash[:])
}

func (l *Listener) receive(w http.ResponseWriter, r *http.Request, recipient string) {
	ctx := r.Context()
	if recipient != "" {
		ctx = logcontext.Add(ctx, "recipient", recipient)
	}

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	} else if _, ok := acceptedContentTypes[mediaType]; !ok {
		slog.DebugContext(ctx, "Unsupported content type", "content_type", contentType)
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	if r.ContentLength > l.Config.MaxRequestBodySize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, l.Config.MaxRequestBodySize+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if int64(len(body)) > l.Config.MaxRequestBodySize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	if digest := r.Header.Get("Digest"); digest != "" {
		if err := ap.ValidateDigest(body, digest); err != nil {
			slog.InfoContext(ctx, "Rejecting activity", "digest", digest, "error", err)
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
	}

	o, err := ap.Parse(body, contentType)
	if err != nil {
		slog.InfoContext(ctx, "Failed to parse activity", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	if !o.Common().Type.IsActivity() {
		slog.InfoContext(ctx, "Received object is not an activity", "type", o.Common().Type)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	ctx = logcontext.Add(ctx, "activity", o.Common().ID, "type", o.Common().Type)

	sig, err := httpsig.Extract(r)
	if err != nil {
		slog.InfoContext(ctx, "Failed to parse signature", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	} else if sig == nil {
		slog.InfoContext(ctx, "Received unsigned activity")
		w.WriteHeader(http.StatusUnauthorized)
		return
	} else if !strings.EqualFold(sig.Host, l.Domain) {
		slog.InfoContext(ctx, "Signature is for another host", "host", sig.Host)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	job := Incoming{
		Recipient: recipient,
		Activity:  body,
		KeyID:     sig.KeyID,
		Algorithm: string(sig.Algorithm),
		Signature: sig.Signature,
		Signed:    sig.Signed,
		Expires:   sig.Expires,
	}
	if !sig.Date.IsZero() {
		job.Date = sig.Date.Unix()
	}

	if err := queue.Enqueue(ctx, l.DB, InboxJob, dedupKey(body), job); err != nil {
		slog.WarnContext(ctx, "Failed to queue activity", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	slog.DebugContext(ctx, "Queued activity", "key", sig.KeyID)
	w.WriteHeader(http.StatusAccepted)
}
