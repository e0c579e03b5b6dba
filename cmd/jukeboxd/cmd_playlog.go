/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_jukebox/internal/db"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
)

var playlogLimit int

var playlogCmd = &cobra.Command{
	Use:   "playlog",
	Short: "Show recently played tracks",
	RunE:  runPlaylog,
}

func init() {
	playlogCmd.Flags().IntVarP(&playlogLimit, "limit", "n", 20, "Number of records to show")
	rootCmd.AddCommand(playlogCmd)
}

func runPlaylog(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	records, err := queue.NewRecorder(database, logger).PlayLog(context.Background(), playlogLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range records {
		who := r.Submitter
		if who == "" {
			who = "-"
		}
		fmt.Fprintf(out, "%s  %-9s %-7s %-12s %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.State, r.Origin, who, r.Track)
	}
	return nil
}
