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

// Command tusk runs a federated ActivityPub server and manages its local accounts.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/logcontext"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	configFile string
	dbPath     string
	domain     string
	logLevel   string

	config *cfg.Config
	db     *sql.DB
)

var rootCmd = &cobra.Command{
	Use:               "tusk",
	Short:             "tusk is a federated ActivityPub server",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "db.sqlite3", "database path")
	rootCmd.PersistentFlags().StringVar(&domain, "domain", "localhost.localdomain", "domain name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(useraddCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(refreshCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if config, err = loadConfig(cmd, configFile); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %s: %w", logLevel, err)
	}

	slog.SetDefault(slog.New(logcontext.NewHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))))

	if db, err = sql.Open("sqlite3", dbPath+"?"+config.DatabaseOptions); err != nil {
		return fmt.Errorf("failed to open %s: %w", dbPath, err)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		os.Exit(1)
	}
}
