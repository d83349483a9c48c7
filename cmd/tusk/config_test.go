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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_File(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "tusk.yaml")
	assert.NoError(os.WriteFile(path, []byte("MaxRequestAge: 1m\nQueueWorkers: 3\n"), 0o600))

	c, err := loadConfig(&cobra.Command{}, path)
	assert.NoError(err)
	assert.Equal(time.Minute, c.MaxRequestAge)
	assert.Equal(3, c.QueueWorkers)
	assert.Equal(64, c.MaxCollectionPages)
	assert.NotNil(c.CompiledUserNameRegex)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TUSK_QUEUEWORKERS", "7")

	c, err := loadConfig(&cobra.Command{}, "")
	assert.NoError(t, err)
	assert.Equal(t, 7, c.QueueWorkers)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(&cobra.Command{}, filepath.Join(t.TempDir(), "tusk.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Flags(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "tusk.yaml")
	assert.NoError(os.WriteFile(path, []byte("domain: a.example\n"), 0o600))

	var d string
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&d, "domain", "localhost.localdomain", "")

	_, err := loadConfig(cmd, path)
	assert.NoError(err)
	assert.Equal("a.example", d)
}
