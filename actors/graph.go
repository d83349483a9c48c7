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

package actors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/fed"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type relation struct {
	follower  bool
	following bool
}

// drainCollection returns the item IDs of a followers or following collection.
//
// If the collection cannot be resolved, drainCollection returns false.
func (s *Syncer) drainCollection(ctx context.Context, account *Account, name string, ref ap.Ref[*ap.Collection]) ([]string, bool) {
	if ref.IsZero() {
		slog.DebugContext(ctx, "Actor has no collection", "actor", account.URI.String, "collection", name)
		return nil, false
	}

	c, ok := fed.Resolve(ctx, s.Resolver, ref)
	if !ok {
		return nil, false
	}

	if c.TotalItems != nil {
		column := "followers_count"
		if name == "following" {
			column = "following_count"
		}

		if _, err := s.DB.ExecContext(ctx, `UPDATE accounts SET `+column+` = ? WHERE id = ?`, max(*c.TotalItems, 0), account.ID); err != nil {
			slog.WarnContext(ctx, "Failed to update counter", "actor", account.URI.String, "collection", name, "error", err)
		}
	}

	var ids []string
	for item := range fed.Paginate(ctx, s.Resolver, c).All() {
		if id := item.ID(); id != "" {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		slog.DebugContext(ctx, "Collection is empty", "actor", account.URI.String, "collection", name, "id", c.ID)
	}

	return ids, true
}

// syncGraph imports follow edges from the followers and following collections of a remote actor.
//
// Existing edges are left as-is, and edges involving local accounts are never created.
func (s *Syncer) syncGraph(ctx context.Context, account *Account, actor *ap.Actor) {
	relations := map[string]*relation{}

	if followers, ok := s.drainCollection(ctx, account, "followers", actor.Followers); ok {
		for _, id := range followers {
			if r, ok := relations[id]; ok {
				r.follower = true
			} else {
				relations[id] = &relation{follower: true}
			}
		}
	}

	if following, ok := s.drainCollection(ctx, account, "following", actor.Following); ok {
		for _, id := range following {
			if r, ok := relations[id]; ok {
				r.following = true
			} else {
				relations[id] = &relation{following: true}
			}
		}
	}

	delete(relations, actor.ID)

	if len(relations) == 0 {
		return
	}

	var lock sync.Mutex
	resolved := make(map[string]*Account, len(relations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Config.GraphSyncConcurrency)

	for id := range relations {
		g.Go(func() error {
			other, err := s.Resolve(gctx, id, false)
			if err != nil {
				slog.InfoContext(gctx, "Failed to resolve related actor", "actor", actor.ID, "related", id, "error", err)
				return nil
			}

			lock.Lock()
			resolved[id] = other
			lock.Unlock()

			return nil
		})
	}

	g.Wait()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to store follow edges", "actor", actor.ID, "error", err)
		return
	}
	defer tx.Rollback()

	now := s.now().Unix()
	added := 0

	for id, other := range resolved {
		if other.IsLocal() {
			continue
		}

		r := relations[id]

		if r.follower {
			if res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO follows(id, account_id, target_account_id, created) VALUES(?, ?, ?, ?)`, uuid.NewString(), other.ID, account.ID, now); err != nil {
				slog.WarnContext(ctx, "Failed to store follow edge", "follower", id, "followed", actor.ID, "error", err)
				return
			} else if n, err := res.RowsAffected(); err == nil {
				added += int(n)
			}
		}

		if r.following {
			if res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO follows(id, account_id, target_account_id, created) VALUES(?, ?, ?, ?)`, uuid.NewString(), account.ID, other.ID, now); err != nil {
				slog.WarnContext(ctx, "Failed to store follow edge", "follower", actor.ID, "followed", id, "error", err)
				return
			} else if n, err := res.RowsAffected(); err == nil {
				added += int(n)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.WarnContext(ctx, "Failed to store follow edges", "actor", actor.ID, "error", err)
		return
	}

	slog.DebugContext(ctx, "Imported follow edges", "actor", actor.ID, "related", len(relations), "resolved", len(resolved), "added", added)
}
