package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/stockpulse/internal/storage"
)

var (
	flagRecent int
	flagPrune  time.Duration
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Check the PostgreSQL archive and print its statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL not set in environment")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Database URL: %s\n", maskPassword(cfg.DatabaseURL))
		ps, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.DedupPrefixLen)
		if err != nil {
			return err
		}
		defer ps.Close()

		if flagPrune > 0 {
			n, err := ps.Cleanup(ctx, flagPrune)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pruned %d items older than %s\n", n, flagPrune)
		}

		stats, err := ps.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(out, "\nArchive statistics:")
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %d\n", k, stats[k])
		}

		items, err := ps.Load(ctx)
		if err != nil {
			return err
		}
		if len(items) > flagRecent {
			items = items[:flagRecent]
		}
		fmt.Fprintf(out, "\nMost recent %d items:\n", len(items))
		for i, it := range items {
			fmt.Fprintln(out, formatItem(i+1, it))
		}
		return nil
	},
}

func init() {
	archiveCmd.Flags().IntVar(&flagRecent, "recent", 5, "number of recent items to print")
	archiveCmd.Flags().DurationVar(&flagPrune, "prune", 0, "delete archived items published before this long ago")
}

// maskPassword hides the password part of a connection URL.
func maskPassword(dbURL string) string {
	if len(dbURL) > 50 {
		return dbURL[:30] + "***" + dbURL[len(dbURL)-20:]
	}
	return dbURL
}
