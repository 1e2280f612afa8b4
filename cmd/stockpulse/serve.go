package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auto-refreshing aggregator behind the HTTP/websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := buildPipeline(ctx, cfg)
		defer p.Close()

		if err := p.agg.Restore(ctx); err != nil {
			logger.Warn("Failed to restore items", "error", err)
		}
		go p.agg.Run(ctx)

		addr := cfg.HTTPAddr
		if flagAddr != "" {
			addr = flagAddr
		}
		return server.New(p.agg,
			server.WithBudget(p.budget),
			server.WithOriginPatterns(cfg.WSOriginPatterns...),
		).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}
