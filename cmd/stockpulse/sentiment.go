package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sentimentCmd = &cobra.Command{
	Use:   "sentiment",
	Short: "Refresh once and print the composite market sentiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p := buildPipeline(ctx, cfg)
		defer p.Close()

		p.agg.Refresh(ctx)
		r := p.agg.Sentiment(ctx)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sentiment: %d (%s)\n", r.Score, r.Label)
		fmt.Fprintf(out, "  market:  %d\n", r.Breakdown.Market)
		fmt.Fprintf(out, "  news:    %d\n", r.Breakdown.News)
		fmt.Fprintf(out, "  breadth: %d\n", r.Breakdown.Breadth)
		return nil
	},
}
