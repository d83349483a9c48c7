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

// Package actors maintains local accounts and the cache of remote actors.
package actors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrLocalAccount is returned when a remote operation is attempted on a local account.
var ErrLocalAccount = errors.New("account is local")

// Account is a row in the accounts table.
//
// A local account has no URI.
type Account struct {
	ID             string
	URI            sql.NullString
	Username       string
	Domain         string
	DisplayName    string
	Note           string
	URL            string
	Inbox          string
	Outbox         string
	SharedInbox    string
	FollowersURL   string
	FollowingURL   string
	Locked         bool
	FollowersCount int64
	FollowingCount int64
	Created        int64
	Fetched        int64
	AvatarFile     string
	AvatarURL      string
	AvatarType     string
	HeaderFile     string
	HeaderURL      string
	HeaderType     string
}

// the columns of [Account], in order
const accountColumns = `accounts.id, accounts.uri, accounts.username, accounts.domain, accounts.display_name, accounts.note, accounts.url, accounts.inbox, accounts.outbox, accounts.shared_inbox, accounts.followers_url, accounts.following_url, accounts.locked, accounts.followers_count, accounts.following_count, accounts.created, accounts.fetched, accounts.avatar_file, accounts.avatar_url, accounts.avatar_type, accounts.header_file, accounts.header_url, accounts.header_type`

// IsLocal determines whether an account belongs to this server.
func (a *Account) IsLocal() bool {
	return !a.URI.Valid
}

// ActorID returns the ActivityPub ID of an account.
func (a *Account) ActorID(domain string) string {
	if a.URI.Valid {
		return a.URI.String
	}
	return localActorID(domain, a.Username)
}

// Acct returns user@domain for remote accounts, or the user name for local ones.
func (a *Account) Acct() string {
	if a.URI.Valid {
		return a.Username + "@" + a.Domain
	}
	return a.Username
}

func localActorID(domain, username string) string {
	return fmt.Sprintf("https://%s/users/%s", domain, username)
}

// LocalUsername returns the user name of a local actor ID.
func LocalUsername(domain, id string) (string, bool) {
	u, err := url.Parse(id)
	if err != nil || u.Scheme != "https" || u.Host != domain || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}

	username, ok := strings.CutPrefix(u.Path, "/users/")
	if !ok || username == "" || strings.Contains(username, "/") {
		return "", false
	}

	return username, true
}
