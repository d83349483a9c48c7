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

func accounts(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE accounts(id TEXT NOT NULL PRIMARY KEY, uri TEXT UNIQUE, username TEXT NOT NULL, domain TEXT NOT NULL DEFAULT '', display_name TEXT NOT NULL DEFAULT '', note TEXT NOT NULL DEFAULT '', url TEXT NOT NULL DEFAULT '', inbox TEXT NOT NULL DEFAULT '', outbox TEXT NOT NULL DEFAULT '', shared_inbox TEXT NOT NULL DEFAULT '', followers_url TEXT NOT NULL DEFAULT '', following_url TEXT NOT NULL DEFAULT '', locked INTEGER NOT NULL DEFAULT 0, followers_count INTEGER NOT NULL DEFAULT 0, following_count INTEGER NOT NULL DEFAULT 0, created INTEGER NOT NULL DEFAULT (UNIXEPOCH()), fetched INTEGER NOT NULL DEFAULT 0, private_key TEXT)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX accountslocal ON accounts(username) WHERE uri IS NULL`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX accountsfollowersurl ON accounts(followers_url) WHERE followers_url != ''`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE account_fields(account_id TEXT NOT NULL, position INTEGER NOT NULL, name TEXT NOT NULL, value TEXT NOT NULL, PRIMARY KEY(account_id, position))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE public_keys(key_id TEXT NOT NULL PRIMARY KEY, account_id TEXT NOT NULL, pem TEXT NOT NULL, inserted INTEGER NOT NULL DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX publickeysaccountid ON public_keys(account_id)`); err != nil {
		return err
	}

	return nil
}
