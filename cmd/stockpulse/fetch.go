package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/stockpulse/internal/app"
	"github.com/deusflow/stockpulse/internal/news"
)

var (
	flagCategory string
	flagPages    int
	flagJSON     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one refresh cycle and print the visible headlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p := buildPipeline(ctx, cfg)
		defer p.Close()

		res := p.agg.Refresh(ctx)
		if err := p.agg.SetCategory(flagCategory); err != nil {
			return fmt.Errorf("%w: %q", err, flagCategory)
		}
		for i := 1; i < flagPages; i++ {
			if r := p.agg.LoadMore(ctx); r.Err != nil {
				break
			}
		}

		snap := p.agg.Snapshot()
		out := cmd.OutOrStdout()
		if flagJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printSnapshot(out, res, snap)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&flagCategory, "category", "", "filter: markets, stocks, economy, ipo, crypto or all")
	fetchCmd.Flags().IntVar(&flagPages, "pages", 1, "number of pages to show")
	fetchCmd.Flags().BoolVar(&flagJSON, "json", false, "print the snapshot as JSON")
}

func printSnapshot(w io.Writer, res app.Result, snap app.Snapshot) {
	if res.Err != nil {
		fmt.Fprintf(w, "refresh: %v\n", res.Err)
	}
	if snap.NoData {
		fmt.Fprintln(w, "No news available right now. Try again later.")
		return
	}

	filter := "all"
	if snap.Category != "" {
		filter = string(snap.Category)
	}
	fmt.Fprintf(w, "%d of %d items (%s), source: %s\n\n", len(snap.Visible), snap.FilteredTotal, filter, res.Stage)
	for i, it := range snap.Visible {
		fmt.Fprintln(w, formatItem(i+1, it))
	}
}

func formatItem(n int, it news.Item) string {
	var b strings.Builder
	marker := " "
	if it.IsFeatured {
		marker = "*"
	}
	fmt.Fprintf(&b, "%s%2d. [%s] %s\n", marker, n, it.Category, it.Title)
	fmt.Fprintf(&b, "     %s | %s", it.Source, it.PublishedAt.Local().Format(time.DateTime))
	if it.LinkURL != news.NullLink {
		fmt.Fprintf(&b, "\n     %s", it.LinkURL)
	}
	return b.String()
}
