/*
Copyright 2024, 2025 Dima Krasner

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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockList_Contains(t *testing.T) {
	blockList := BlockList{
		domains: map[string]struct{}{
			"spam.example":         {},
			"social.mixed.example": {},
		},
	}

	for host, blocked := range map[string]bool{
		"spam.example":         true,
		"spam.example.":        true,
		"a.spam.example":       true,
		"a.b.spam.example.":    true,
		"notspam.example":      false,
		"social.mixed.example": true,
		"blog.mixed.example":   false,
		"mixed.example":        false,
		"b.example":            false,
	} {
		assert.Equal(t, blocked, blockList.Contains(host), host)
	}
}

func TestBlockList_Nil(t *testing.T) {
	var blockList *BlockList
	assert.False(t, blockList.Contains("spam.example"))
	assert.False(t, blockList.ContainsURL("https://spam.example/users/a"))
	blockList.Close()
}

func TestBlockList_ContainsURL(t *testing.T) {
	assert := assert.New(t)

	blockList := BlockList{}
	blockList.domains = map[string]struct{}{
		"spam.example": {},
	}

	assert.True(blockList.ContainsURL("https://social.spam.example/users/a"))
	assert.True(blockList.ContainsURL("https://spam.example:8443/inbox"))
	assert.False(blockList.ContainsURL("https://b.example/inbox"))
}

func TestBlockList_Reload(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.csv")
	assert.NoError(os.WriteFile(path, []byte("#domain,#severity\nspam.example,suspend\n"), 0o600))

	blockList, err := NewBlockList(context.Background(), path, time.Millisecond*10)
	assert.NoError(err)
	defer blockList.Close()

	assert.True(blockList.Contains("spam.example"))
	assert.False(blockList.Contains("other.example"))

	assert.NoError(os.WriteFile(path, []byte("#domain,#severity\nother.example,suspend\n"), 0o600))

	assert.Eventually(func() bool {
		return blockList.Contains("other.example") && !blockList.Contains("spam.example")
	}, time.Second*5, time.Millisecond*10)
}
