/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/logging"
	"github.com/friendsincode/grimnir_jukebox/internal/trackdb"
	"github.com/friendsincode/grimnir_jukebox/internal/version"
)

var (
	logger   zerolog.Logger
	cfg      *config.Config
	playback *config.Playback
)

var rootCmd = &cobra.Command{
	Use:           "jukeboxd",
	Short:         "Networked audio jukebox",
	Long:          "jukeboxd keeps a queue of tracks playing through external player programs, topping it up with random picks.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and the playback file. Log events are
// also written to sink when it is non-nil.
func loadConfig(sink io.Writer) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.SetupWithWriter(cfg.Environment, sink)
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	playback, err = config.LoadPlayback(cfg.PlaybackFile)
	if err != nil {
		return fmt.Errorf("load playback file: %w", err)
	}
	return nil
}

func openTrackDB() (*trackdb.DB, error) {
	tracks, err := trackdb.Open(cfg.TrackDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open track database: %w", err)
	}
	tracks.SetCollections(playback.Collections)
	return tracks, nil
}

func policyFor(pb *config.Playback) choose.Policy {
	return choose.Policy{
		ReplayMin:      pb.ReplayMin,
		NewBias:        pb.NewBias,
		NewBiasAge:     pb.NewBiasAge,
		RequiredTags:   pb.RequiredTags,
		ProhibitedTags: pb.ProhibitedTags,
	}
}
