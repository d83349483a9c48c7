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
	"fmt"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/follows"
	"github.com/dimkr/tusk/media"
	"github.com/dimkr/tusk/migrations"
	"github.com/dimkr/tusk/status"
	"github.com/spf13/cobra"
)

var (
	visibility string
	summary    string
	inReplyTo  string
	sensitive  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrations.Run(cmd.Context(), db)
	},
}

var useraddCmd = &cobra.Command{
	Use:   "useradd USERNAME",
	Short: "Create a local account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		directory := actors.Directory{Domain: domain, Config: config, DB: db}
		account, err := directory.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), account.URL)
		return nil
	},
}

var followCmd = &cobra.Command{
	Use:   "follow USERNAME ACCOUNT",
	Short: "Follow an account by actor ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		account, err := actors.GetLocal(ctx, db, args[0])
		if err != nil {
			return err
		}

		return follows.New(domain, db, newSyncer()).Request(ctx, account, args[1])
	},
}

var postCmd = &cobra.Command{
	Use:   "post USERNAME TEXT",
	Short: "Publish a status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		account, err := actors.GetLocal(ctx, db, args[0])
		if err != nil {
			return err
		}

		syncer := newSyncer()

		s, err := status.New(domain, db, syncer, syncer.Resolver).Create(ctx, account, status.Post{
			Text:       args[1],
			Summary:    summary,
			Sensitive:  sensitive,
			Visibility: status.Visibility(visibility),
			InReplyTo:  inReplyTo,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), s.URI)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Queue a refresh of all remote actors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := actors.RefreshAll(cmd.Context(), db)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Queued %d actors\n", n)
		return nil
	},
}

func init() {
	postCmd.Flags().StringVar(&visibility, "visibility", string(status.Public), "public, unlisted, private or direct")
	postCmd.Flags().StringVar(&summary, "summary", "", "content warning")
	postCmd.Flags().BoolVar(&sensitive, "sensitive", false, "mark as sensitive")
	postCmd.Flags().StringVar(&inReplyTo, "reply-to", "", "URI of the replied status")
}

func newSyncer() *actors.Syncer {
	client := fed.NewClient(config)
	return actors.NewSyncer(domain, config, db, fed.NewResolver(config, client, nil), media.NewStore(config, client, nil))
}
