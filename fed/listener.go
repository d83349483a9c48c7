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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
)

// ErrNoSuchAccount is returned when a local account does not exist.
var ErrNoSuchAccount = errors.New("no such account")

// LocalActors renders local accounts.
type LocalActors interface {
	// Document returns the actor of a local account, or an error wrapping [ErrNoSuchAccount].
	Document(ctx context.Context, username string) (*ap.Actor, error)
}

// Listener is the federation HTTP server.
type Listener struct {
	Domain string
	Config *cfg.Config
	DB     *sql.DB
	Actors LocalActors
	Addr   string
}

// NewHandler returns the HTTP handler of all federation endpoints.
func (l *Listener) NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbox", l.handleSharedInbox)
	mux.HandleFunc("POST /users/{username}/inbox", l.handleInbox)
	mux.HandleFunc("GET /users/{username}", l.handleUser)
	mux.HandleFunc("GET /users/{username}/followers", l.handleFollowers)
	mux.HandleFunc("GET /users/{username}/following", l.handleFollowing)
	mux.HandleFunc("GET /.well-known/webfinger", l.handleWebFinger)
	return mux
}

// ListenAndServe handles HTTP requests until ctx is done.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	server := http.Server{
		Addr:    l.Addr,
		Handler: l.NewHandler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: l.Config.RequestTimeout,
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), l.Config.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Failed to shut down listener", "error", err)
			}

		case <-done:
		}
	}()
	defer close(done)

	slog.InfoContext(ctx, "Listening", "addr", l.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (l *Listener) localActorID(username string) string {
	return fmt.Sprintf("https://%s/users/%s", l.Domain, username)
}

func (l *Listener) handleUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	actor, err := l.Actors.Document(r.Context(), username)
	if errors.Is(err, ErrNoSuchAccount) {
		w.WriteHeader(http.StatusNotFound)
		return
	} else if err != nil {
		slog.WarnContext(r.Context(), "Failed to render actor", "username", username, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeObject(r.Context(), w, actor)
}

func writeObject(ctx context.Context, w http.ResponseWriter, o ap.Object) {
	j, err := ap.Serialize(o)
	if err != nil {
		slog.WarnContext(ctx, "Failed to serialize object", "id", o.Common().ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ap.ActivityContentType)
	w.Write(j)
}

func (l *Listener) lookupLocal(ctx context.Context, username string) (string, error) {
	var id string
	if err := l.DB.QueryRowContext(ctx, `SELECT id FROM accounts WHERE username = ? AND uri IS NULL`, username).Scan(&id); errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNoSuchAccount, username)
	} else if err != nil {
		return "", err
	}

	return id, nil
}

