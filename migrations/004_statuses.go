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

package migrations

import (
	"context"
	"database/sql"
)

func statuses(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE statuses(id TEXT NOT NULL PRIMARY KEY, uri TEXT NOT NULL UNIQUE, url TEXT NOT NULL DEFAULT '', account_id TEXT NOT NULL, local INTEGER NOT NULL DEFAULT 0, in_reply_to_uri TEXT NOT NULL DEFAULT '', reblog_of_id TEXT NOT NULL DEFAULT '', content TEXT NOT NULL DEFAULT '', text TEXT NOT NULL DEFAULT '', summary TEXT NOT NULL DEFAULT '', sensitive INTEGER NOT NULL DEFAULT 0, visibility TEXT NOT NULL, created INTEGER NOT NULL DEFAULT (UNIXEPOCH()), updated INTEGER NOT NULL DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX statusesaccountid ON statuses(account_id)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX statusesreblogofid ON statuses(reblog_of_id) WHERE reblog_of_id != ''`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE status_audiences(status_id TEXT NOT NULL, kind TEXT NOT NULL, account_id TEXT NOT NULL DEFAULT '', UNIQUE(status_id, kind, account_id))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE home_timeline(account_id TEXT NOT NULL, status_id TEXT NOT NULL, inserted INTEGER NOT NULL DEFAULT (UNIXEPOCH()), PRIMARY KEY(account_id, status_id))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE public_timeline(status_id TEXT NOT NULL PRIMARY KEY, inserted INTEGER NOT NULL DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE favourites(account_id TEXT NOT NULL, status_id TEXT NOT NULL, uri TEXT NOT NULL DEFAULT '', created INTEGER NOT NULL DEFAULT (UNIXEPOCH()), PRIMARY KEY(account_id, status_id))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX favouritesuri ON favourites(uri) WHERE uri != ''`); err != nil {
		return err
	}

	return nil
}
