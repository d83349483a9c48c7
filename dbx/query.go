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

// Package dbx contains helpers for reading query results into Go values.
package dbx

import (
	"context"
	"database/sql"
)

// Execer is implemented by [sql.DB] and [sql.Tx].
type Execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// Querier is implemented by [sql.DB] and [sql.Tx].
type Querier interface {
	Execer
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// QueryCollectCount runs a SQL query.
//
// count is the expected number of rows.
//
// The columns of each row are assigned to visible fields of T.
func QueryCollectCount[T any](
	ctx context.Context,
	db Querier,
	count int,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	return CollectRows[T](rows, count)
}

// QueryCollect runs a SQL query.
//
// The columns of each row are assigned to visible fields of T.
func QueryCollect[T any](
	ctx context.Context,
	db Querier,
	query string,
	args ...any,
) ([]T, error) {
	return QueryCollectCount[T](ctx, db, 1, query, args...)
}

// QueryScan is like [ScanRows] but also runs the query.
func QueryScan[T any](
	ctx context.Context,
	collect func(T) bool,
	db Querier,
	query string,
	args ...any,
) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	return ScanRows(rows, collect)
}

// QueryOne runs a SQL query and returns the first row, or [sql.ErrNoRows].
func QueryOne[T any](
	ctx context.Context,
	db Querier,
	query string,
	args ...any,
) (T, error) {
	var (
		first T
		found bool
	)

	if err := QueryScan(
		ctx,
		func(row T) bool {
			first = row
			found = true
			return false
		},
		db,
		query,
		args...,
	); err != nil {
		return first, err
	}

	if !found {
		return first, sql.ErrNoRows
	}

	return first, nil
}
