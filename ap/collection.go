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

package ap

// Collection is a collection, an ordered collection or a page of either.
//
// TotalItems is a hint and may be absent or wrong.
type Collection struct {
	Envelope
	TotalItems   *int64             `json:"totalItems,omitempty"`
	Items        Array[Ref[Object]] `json:"items,omitzero"`
	OrderedItems Array[Ref[Object]] `json:"orderedItems,omitzero"`
	First        Ref[Object]        `json:"first,omitzero"`
	Last         Ref[Object]        `json:"last,omitzero"`
	Next         Ref[Object]        `json:"next,omitzero"`
	Prev         Ref[Object]        `json:"prev,omitzero"`
	PartOf       string             `json:"partOf,omitempty"`
}

// HasItems determines whether the collection contains inlined items.
func (c *Collection) HasItems() bool {
	return len(c.Items) > 0 || len(c.OrderedItems) > 0
}

// AllItems returns the inlined items.
func (c *Collection) AllItems() []Ref[Object] {
	if len(c.OrderedItems) == 0 {
		return c.Items
	}

	if len(c.Items) == 0 {
		return c.OrderedItems
	}

	l := make([]Ref[Object], 0, len(c.Items)+len(c.OrderedItems))
	l = append(l, c.OrderedItems...)
	return append(l, c.Items...)
}
