/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
)

var chooseCount int

var chooseCmd = &cobra.Command{
	Use:   "choose",
	Short: "Print random picks without queueing them",
	Long: `Run the random track chooser against the track database and print
the result, using the same weights as random play. Tracks already printed
are treated as queued, so the picks are distinct.`,
	RunE: runChoose,
}

func init() {
	chooseCmd.Flags().IntVarP(&chooseCount, "count", "n", 1, "Number of tracks to pick")
	rootCmd.AddCommand(chooseCmd)
}

func runChoose(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}
	tracks, err := openTrackDB()
	if err != nil {
		return err
	}
	defer tracks.Close()

	chooser := choose.NewService(tracks, policyFor(playback), logger)
	live := make(map[string]struct{})
	for range chooseCount {
		track, err := chooser.Pick(context.Background(), live)
		if err != nil {
			return err
		}
		live[track] = struct{}{}
		fmt.Fprintln(cmd.OutOrStdout(), track)
	}
	return nil
}
