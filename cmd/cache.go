package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the LLM response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached responses per producer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheStatsRun(cmd)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheClearRun(cmd)
	},
}

func init() {
	cacheClearCmd.Flags().DurationVar(&cacheOlderThan, "older-than", 0, "Only delete entries older than this (e.g. 720h)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheStatsRun(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openCache(cmd.Context(), cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		return err
	}

	ui.Info("Cache: %s (enabled: %t)", cfg.Cache.Path, cfg.Cache.Enabled)
	if len(stats) == 0 {
		ui.Info("No cached responses")
		return nil
	}

	table := ui.Table([]string{"Producer", "Entries", "Hits", "Size"})
	for _, st := range stats {
		_ = table.Append([]string{
			st.Producer,
			fmt.Sprintf("%d", st.Entries),
			fmt.Sprintf("%d", st.Hits),
			fmt.Sprintf("%.1f KB", float64(st.Bytes)/1024),
		})
	}
	return table.Render()
}

func cacheClearRun(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var cutoff time.Time
	if cacheOlderThan > 0 {
		cutoff = time.Now().Add(-cacheOlderThan)
	}

	if dryRun {
		if cutoff.IsZero() {
			ui.DryRunMsg("Would delete all cached responses in %s", cfg.Cache.Path)
		} else {
			ui.DryRunMsg("Would delete cached responses older than %s in %s", cacheOlderThan, cfg.Cache.Path)
		}
		return nil
	}

	s, err := openCache(cmd.Context(), cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	n, err := s.Purge(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	ui.Success("Deleted %d cached responses", n)
	return nil
}
