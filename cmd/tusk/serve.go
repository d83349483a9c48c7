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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/follows"
	"github.com/dimkr/tusk/inbox"
	"github.com/dimkr/tusk/media"
	"github.com/dimkr/tusk/migrations"
	"github.com/dimkr/tusk/queue"
	"github.com/dimkr/tusk/status"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	addr          string
	blockListPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve federation requests and run background jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", ":8443", "HTTP listening address")
	serveCmd.Flags().StringVar(&blockListPath, "blocklist", "", "blocklist CSV path")
}

func serve(ctx context.Context) error {
	if err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	client := fed.NewClient(config)

	var blockList *fed.BlockList
	if blockListPath != "" {
		var err error
		if blockList, err = fed.NewBlockList(ctx, blockListPath, config.BlockListReloadDelay); err != nil {
			return fmt.Errorf("failed to load blocklist: %w", err)
		}
		defer blockList.Close()
	}

	resolver := fed.NewResolver(config, client, blockList)
	syncer := actors.NewSyncer(domain, config, db, resolver, media.NewStore(config, client, blockList))
	directory := &actors.Directory{Domain: domain, Config: config, DB: db}
	workflow := follows.New(domain, db, syncer)
	statuses := status.New(domain, db, syncer, resolver)
	dispatcher := inbox.New(domain, config, db, syncer, workflow, statuses, resolver)

	q := queue.New(config, db)
	queue.Handle(q, fed.DeliverJob, fed.NewDeliverer(domain, config, client, blockList, directory).Deliver)
	queue.Handle(q, fed.InboxJob, dispatcher.Handle)
	queue.Handle(q, actors.RefreshJob, syncer.Refresh)

	listener := fed.Listener{
		Domain: domain,
		Config: config,
		DB:     db,
		Actors: directory,
		Addr:   addr,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.ListenAndServe(ctx)
	})

	g.Go(func() error {
		return q.Run(ctx)
	})

	g.Go(func() error {
		t := time.NewTicker(config.ActorTTL)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case <-t.C:
				if n, err := actors.RefreshAll(ctx, db); err != nil {
					slog.WarnContext(ctx, "Failed to queue actor refresh", "error", err)
				} else {
					slog.InfoContext(ctx, "Queued actor refresh", "actors", n)
				}
			}
		}
	})

	slog.InfoContext(ctx, "Starting", "domain", domain, "addr", addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.InfoContext(ctx, "Shutting down")
	return nil
}
