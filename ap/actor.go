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

// PublicKey is a key used to verify signatures by an actor.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints contains additional URLs of an actor.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Actor is a person, a group, a service, an organization or an application.
type Actor struct {
	Envelope
	PreferredUsername         string                 `json:"preferredUsername,omitempty"`
	Inbox                     string                 `json:"inbox,omitempty"`
	Outbox                    string                 `json:"outbox,omitempty"`
	Followers                 Ref[*Collection]       `json:"followers,omitzero"`
	Following                 Ref[*Collection]       `json:"following,omitzero"`
	Featured                  string                 `json:"featured,omitempty"`
	Endpoints                 Ref[*Endpoints]        `json:"endpoints,omitzero"`
	PublicKey                 Array[Ref[*PublicKey]] `json:"publicKey,omitzero"`
	ManuallyApprovesFollowers bool                   `json:"manuallyApprovesFollowers"`
	Discoverable              bool                   `json:"discoverable,omitempty"`
	MovedTo                   string                 `json:"movedTo,omitempty"`
}
