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

// Package notify records notifications of local accounts.
package notify

import (
	"context"
	"fmt"

	"github.com/dimkr/tusk/dbx"
	"github.com/google/uuid"
)

// Kind is the kind of a notification.
type Kind string

const (
	Follow        Kind = "follow"
	FollowRequest Kind = "follow_request"
	Mention       Kind = "mention"
	Favourite     Kind = "favourite"
	Reblog        Kind = "reblog"
)

// Notification is a row in the notifications table.
type Notification struct {
	ID            string
	AccountID     string
	FromAccountID string
	Kind          Kind
	StatusID      string
	Created       int64
}

// Insert adds a notification, unless an identical one already exists.
//
// statusID is empty for follow notifications.
func Insert(ctx context.Context, db dbx.Execer, accountID, fromAccountID string, kind Kind, statusID string) error {
	if accountID == fromAccountID {
		return nil
	}

	if _, err := db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO notifications(id, account_id, from_account_id, kind, status_id) SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM accounts WHERE id = ? AND uri IS NULL)`,
		uuid.NewString(),
		accountID,
		fromAccountID,
		kind,
		statusID,
		accountID,
	); err != nil {
		return fmt.Errorf("failed to notify %s of %s: %w", accountID, kind, err)
	}

	return nil
}

// Remove deletes a notification, if it exists.
func Remove(ctx context.Context, db dbx.Execer, accountID, fromAccountID string, kind Kind, statusID string) error {
	if _, err := db.ExecContext(
		ctx,
		`DELETE FROM notifications WHERE account_id = ? AND from_account_id = ? AND kind = ? AND status_id = ?`,
		accountID,
		fromAccountID,
		kind,
		statusID,
	); err != nil {
		return fmt.Errorf("failed to remove %s notification of %s: %w", kind, accountID, err)
	}

	return nil
}

// List returns the notifications of a local account, newest first.
func List(ctx context.Context, db dbx.Querier, accountID string, limit int) ([]Notification, error) {
	notifications, err := dbx.QueryCollect[Notification](
		ctx,
		db,
		`SELECT id, account_id, from_account_id, kind, status_id, created FROM notifications WHERE account_id = ? ORDER BY created DESC, rowid DESC LIMIT ?`,
		accountID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications of %s: %w", accountID, err)
	}

	return notifications, nil
}
