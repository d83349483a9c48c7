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

package dbx

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
)

var scannerType = reflect.TypeFor[sql.Scanner]()

// CollectRows reads the results of a SQL query.
//
// expected is the expected number of rows.
//
// If T is a struct, the columns of each row are assigned to visible fields of T.
//
// T must not be a pointer.
func CollectRows[T any](rows *sql.Rows, expected int) ([]T, error) {
	scanned := make([]T, 0, expected)

	if err := ScanRows(
		rows,
		func(row T) bool {
			scanned = append(scanned, row)
			return true
		},
	); err != nil {
		return nil, err
	}

	return scanned, nil
}

// ScanRows reads the results of a SQL query and passes each row to collect, until collect returns
// false.
//
// If T is a struct that doesn't implement [sql.Scanner], columns are assigned to its exported,
// non-embedded fields in declaration order.
func ScanRows[T any](rows *sql.Rows, collect func(T) bool) error {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		return errors.New("cannot scan into a pointer type")
	}

	byField := t.Kind() == reflect.Struct && !reflect.PointerTo(t).Implements(scannerType)

	var fields []int
	if byField {
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() && !f.Anonymous {
				fields = append(fields, i)
			}
		}
	}

	for rows.Next() {
		var row T

		if byField {
			v := reflect.ValueOf(&row).Elem()
			dest := make([]any, len(fields))
			for i, f := range fields {
				dest[i] = v.Field(f).Addr().Interface()
			}

			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("failed to scan %T: %w", row, err)
			}
		} else if err := rows.Scan(&row); err != nil {
			return fmt.Errorf("failed to scan %T: %w", row, err)
		}

		if !collect(row) {
			break
		}
	}

	return rows.Err()
}
