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

package fed

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BlockList is a list of blocked domains, loaded from a CSV file and reloaded when it changes.
//
// The first column of each row, except the header row, is a domain. Subdomains of a blocked domain
// are blocked too. A nil *BlockList blocks nothing.
type BlockList struct {
	lock    sync.Mutex
	wg      sync.WaitGroup
	w       *fsnotify.Watcher
	domains map[string]struct{}
}

var ErrBlockedDomain = errors.New("domain is blocked")

func loadBlocklist(path string) (map[string]struct{}, error) {
	blockedDomains := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := csv.NewReader(f)
	c.FieldsPerRecord = -1
	first := true
	for {
		r, err := c.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if first {
			first = false
			continue
		}

		if domain := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(r[0]), ".")); domain != "" {
			blockedDomains[domain] = struct{}{}
		}
	}

	return blockedDomains, nil
}

// NewBlockList loads a blocklist and starts watching it. Changes are applied after delay, so a
// file written in several steps is read once.
func NewBlockList(ctx context.Context, path string, delay time.Duration) (*BlockList, error) {
	domains, err := loadBlocklist(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	absPath := filepath.Join(dir, filepath.Base(path))

	b := &BlockList{w: w, domains: domains}

	timer := time.NewTimer(math.MaxInt64)
	timer.Stop()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}

				if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && event.Name == absPath {
					timer.Reset(delay)
				}

			case err, ok := <-w.Errors:
				if !ok {
					timer.Stop()
					return
				}
				slog.WarnContext(ctx, "Failed to watch blocklist", "path", path, "error", err)

			case <-timer.C:
				newDomains, err := loadBlocklist(path)
				if err != nil {
					slog.WarnContext(ctx, "Failed to reload blocklist", "path", path, "error", err)
					continue
				}

				// the file may have been truncated before it was rewritten
				if b.Len() > 0 && len(newDomains) == 0 {
					slog.WarnContext(ctx, "New blocklist is empty")
					continue
				}

				b.lock.Lock()
				b.domains = newDomains
				b.lock.Unlock()
				slog.InfoContext(ctx, "Reloaded blocklist", "path", path, "length", len(newDomains))
			}
		}
	}()

	return b, nil
}

// Len returns the number of blocked domains.
func (b *BlockList) Len() int {
	if b == nil {
		return 0
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.domains)
}

// Contains determines if a domain or one of its parent domains is blocked.
func (b *BlockList) Contains(domain string) bool {
	if b == nil {
		return false
	}

	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	b.lock.Lock()
	defer b.lock.Unlock()

	for {
		if _, ok := b.domains[domain]; ok {
			return true
		}

		_, parent, ok := strings.Cut(domain, ".")
		if !ok || parent == "" {
			return false
		}

		domain = parent
	}
}

// ContainsURL determines if the host of a URL is blocked.
func (b *BlockList) ContainsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return b.Contains(u.Hostname())
}

// Close frees resources.
func (b *BlockList) Close() {
	if b == nil {
		return
	}

	b.w.Close()
	b.wg.Wait()
}
