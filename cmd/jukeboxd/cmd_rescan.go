/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Scan the collections for new and vanished tracks",
	Long: `Walk every collection root from the playback file, add tracks the
database has not seen and forget tracks that no longer exist.

Do not run this while jukeboxd serve holds the track database open.`,
	RunE: runRescan,
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}
	if len(playback.Collections) == 0 {
		return fmt.Errorf("no collections configured in the playback file")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracks, err := openTrackDB()
	if err != nil {
		return err
	}
	defer tracks.Close()

	stats, err := tracks.Rescan(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "roots=%d seen=%d added=%d removed=%d in %s\n",
		stats.Roots, stats.Seen, stats.Added, stats.Removed, stats.Duration.Round(time.Millisecond))
	return nil
}
