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

import (
	"encoding/json"

	"github.com/dimkr/tusk/data"
)

// Audience is an ordered, unique list of recipient URIs.
type Audience struct {
	data.OrderedMap[string, struct{}]
}

// Add adds a recipient, unless already present.
func (a *Audience) Add(s string) {
	a.OrderedMap.Store(s, struct{}{})
}

// IsPublic determines whether an audience includes the public collection, in any of its forms.
func (a *Audience) IsPublic() bool {
	return a.Contains(Public) || a.Contains("as:Public") || a.Contains("Public")
}

// IsPublicID determines whether a recipient is the public collection.
func IsPublicID(id string) bool {
	return id == Public || id == "as:Public" || id == "Public"
}

func (a *Audience) UnmarshalJSON(b []byte) error {
	*a = Audience{}

	var l []json.RawMessage
	if err := json.Unmarshal(b, &l); err != nil {
		// Mastodon represents poll votes as a Create with a string in "to"
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.Add(s)
		return nil
	}

	for _, raw := range l {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			a.Add(s)
			continue
		}

		// inlined actor or collection
		var o struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		if o.ID != "" {
			a.Add(o.ID)
		}
	}

	return nil
}

func (a Audience) MarshalJSON() ([]byte, error) {
	keys := a.Keys()
	if keys == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(keys)
}
