/*
Copyright 2024 - 2026 Dima Krasner

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

package ap

import (
	"bytes"
	"encoding/json"
)

// Array is a property that may appear as a single item, a list of items or not at all.
//
// An empty list is decoded as nil, so an empty Array is always omitted by omitzero.
type Array[T any] []T

// IsZero determines whether an Array has no items.
func (a Array[T]) IsZero() bool {
	return len(a) == 0
}

func (a *Array[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '[' {
		var l []T
		if err := json.Unmarshal(b, &l); err != nil {
			return err
		}

		if len(l) == 0 {
			*a = nil
		} else {
			*a = l
		}
		return nil
	}

	if bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}

	var single T
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}

	*a = Array[T]{single}
	return nil
}

func (a Array[T]) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(([]T)(a))
}
