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

func follows(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE follows(id TEXT NOT NULL PRIMARY KEY, account_id TEXT NOT NULL, target_account_id TEXT NOT NULL, pending INTEGER NOT NULL DEFAULT 0, notify INTEGER NOT NULL DEFAULT 0, reblogs INTEGER NOT NULL DEFAULT 1, uri TEXT NOT NULL DEFAULT '', created INTEGER NOT NULL DEFAULT (UNIXEPOCH()), UNIQUE(account_id, target_account_id))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX followstargetaccountid ON follows(target_account_id)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX followsuri ON follows(uri) WHERE uri != ''`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE notifications(id TEXT NOT NULL PRIMARY KEY, account_id TEXT NOT NULL, from_account_id TEXT NOT NULL, kind TEXT NOT NULL, status_id TEXT NOT NULL DEFAULT '', created INTEGER NOT NULL DEFAULT (UNIXEPOCH()), UNIQUE(account_id, from_account_id, kind, status_id))`); err != nil {
		return err
	}

	return nil
}
