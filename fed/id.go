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

package fed

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a pseudo-random ID for a local object, like a status or an activity.
func NewID(domain, prefix string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate %s ID: %w", prefix, err)
	}

	return fmt.Sprintf("https://%s/%s/%s", domain, prefix, u.String()), nil
}

// DerivedID returns a stable ID for a local object that responds to another object, so handling
// the same object twice produces the same response.
func DerivedID(domain, prefix, id string) string {
	return fmt.Sprintf("https://%s/%s/%s", domain, prefix, uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String())
}
