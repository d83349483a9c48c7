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

// Package cfg defines the tusk configuration file format and defaults.
package cfg

import (
	"regexp"
	"time"
)

// Config represents a tusk configuration file.
type Config struct {
	DatabaseOptions string

	UserNameRegex         string
	CompiledUserNameRegex *regexp.Regexp `json:"-" mapstructure:"-"`

	MaxRequestBodySize  int64
	MaxResponseBodySize int64
	MaxRequestAge       time.Duration

	DialTimeout             time.Duration
	RequestTimeout          time.Duration
	ResolverMaxIdleConns    int
	ResolverIdleConnTimeout time.Duration

	ResolverMaxAttempts int
	ResolverRetryBase   time.Duration
	MaxRetryAfter       time.Duration

	MaxCollectionPages   int
	GraphSyncConcurrency int
	ActorTTL             time.Duration

	MaxKeysPerActor   int
	MaxFieldsPerActor int

	MediaDir        string
	MaxImageSize    int64
	MaxImageWidth   int
	MaxImageHeight  int
	MaxDecodeWidth  int
	MaxDecodeHeight int

	QueueWorkers      int
	QueuePollInterval time.Duration
	QueueBatchSize    int
	JobLease          time.Duration
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffFloor   time.Duration
	JobMaxBackoff     time.Duration

	BlockListReloadDelay time.Duration

	ShutdownTimeout time.Duration
}

// FillDefaults replaces missing or invalid settings with defaults.
func (c *Config) FillDefaults() {
	if c.DatabaseOptions == "" {
		c.DatabaseOptions = "_journal_mode=WAL&_synchronous=1&_busy_timeout=5000"
	}

	if c.UserNameRegex == "" {
		c.UserNameRegex = `^[a-zA-Z0-9_]{1,30}$`
	}

	c.CompiledUserNameRegex = regexp.MustCompile(c.UserNameRegex)

	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 1024 * 1024
	}

	if c.MaxResponseBodySize <= 0 {
		c.MaxResponseBodySize = 1024 * 1024
	}

	if c.MaxRequestAge <= 0 {
		c.MaxRequestAge = time.Minute * 5
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second * 5
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Second * 15
	}

	if c.ResolverMaxIdleConns <= 0 {
		c.ResolverMaxIdleConns = 128
	}

	if c.ResolverIdleConnTimeout <= 0 {
		c.ResolverIdleConnTimeout = time.Minute
	}

	if c.ResolverMaxAttempts <= 0 {
		c.ResolverMaxAttempts = 4
	}

	if c.ResolverRetryBase <= 0 {
		c.ResolverRetryBase = time.Second
	}

	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = time.Minute * 2
	}

	if c.MaxCollectionPages <= 0 {
		c.MaxCollectionPages = 64
	}

	if c.GraphSyncConcurrency <= 0 {
		c.GraphSyncConcurrency = 10
	}

	if c.ActorTTL <= 0 {
		c.ActorTTL = time.Hour * 24
	}

	if c.MaxKeysPerActor <= 0 {
		c.MaxKeysPerActor = 4
	}

	if c.MaxFieldsPerActor <= 0 {
		c.MaxFieldsPerActor = 16
	}

	if c.MediaDir == "" {
		c.MediaDir = "media"
	}

	if c.MaxImageSize <= 0 {
		c.MaxImageSize = 4 * 1024 * 1024
	}

	if c.MaxImageWidth <= 0 {
		c.MaxImageWidth = 4096
	}

	if c.MaxImageHeight <= 0 {
		c.MaxImageHeight = 4096
	}

	if c.MaxDecodeWidth <= 0 {
		c.MaxDecodeWidth = 16384
	}

	if c.MaxDecodeHeight <= 0 {
		c.MaxDecodeHeight = 16384
	}

	if c.QueueWorkers <= 0 {
		c.QueueWorkers = 10
	}

	if c.QueuePollInterval <= 0 {
		c.QueuePollInterval = time.Second * 5
	}

	if c.QueueBatchSize <= 0 {
		c.QueueBatchSize = 32
	}

	if c.JobLease <= 0 {
		c.JobLease = time.Minute * 5
	}

	if c.JobMaxAttempts <= 0 {
		c.JobMaxAttempts = 10
	}

	if c.JobBackoffBase <= 0 {
		c.JobBackoffBase = time.Minute
	}

	if c.JobBackoffFloor <= 0 {
		c.JobBackoffFloor = time.Second * 30
	}

	if c.JobMaxBackoff <= 0 {
		c.JobMaxBackoff = time.Hour * 24
	}

	if c.BlockListReloadDelay <= 0 {
		c.BlockListReloadDelay = time.Second * 5
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = time.Second * 30
	}
}
