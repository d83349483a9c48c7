/*
Copyright 2023 - 2026 Dima Krasner

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

// Package data contains small data structures and encoding helpers shared by other packages.
package data

import "iter"

// OrderedMap is a map that maintains insertion order.
//
// The zero value is an empty map ready to use.
type OrderedMap[TK comparable, TV any] struct {
	keys   []TK
	values map[TK]TV
}

// Contains determines if the map contains a key.
func (m *OrderedMap[TK, TV]) Contains(key TK) bool {
	_, ok := m.values[key]
	return ok
}

// Store adds a key/value pair to the map if the map doesn't contain it already.
// It returns false if the key is a duplicate.
func (m *OrderedMap[TK, TV]) Store(key TK, value TV) bool {
	if _, dup := m.values[key]; dup {
		return false
	}

	if m.values == nil {
		m.values = map[TK]TV{}
	}

	m.values[key] = value
	m.keys = append(m.keys, key)
	return true
}

// Get returns the value associated with a key.
func (m *OrderedMap[TK, TV]) Get(key TK) (TV, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of keys.
func (m *OrderedMap[TK, TV]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys, in insertion order.
func (m *OrderedMap[TK, TV]) Keys() []TK {
	if len(m.keys) == 0 {
		return nil
	}

	l := make([]TK, len(m.keys))
	copy(l, m.keys)
	return l
}

// All iterates over key/value pairs in insertion order.
func (m *OrderedMap[TK, TV]) All() iter.Seq2[TK, TV] {
	return func(yield func(TK, TV) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}
