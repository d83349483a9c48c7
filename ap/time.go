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
	"bytes"
	"time"
)

// Time is a [time.Time] that tolerates timestamps without a colon in the zone offset.
type Time struct {
	time.Time
}

var fallbackLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	err := t.Time.UnmarshalJSON(b)
	if err == nil || len(b) <= 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return err
	}

	// Threads and some other servers omit the colon
	for _, layout := range fallbackLayouts {
		if parsed, fallbackErr := time.Parse(layout, string(b[1:len(b)-1])); fallbackErr == nil {
			t.Time = parsed
			return nil
		}
	}

	return err
}
