package main

import (
	"context"
	"time"

	"github.com/deusflow/stockpulse/internal/app"
	"github.com/deusflow/stockpulse/internal/cache"
	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/feeds"
	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/market"
	"github.com/deusflow/stockpulse/internal/providers"
	"github.com/deusflow/stockpulse/internal/ratelimit"
	"github.com/deusflow/stockpulse/internal/relay"
	"github.com/deusflow/stockpulse/internal/storage"
)

// snapshotMaxAge bounds how old restored items may be.
const snapshotMaxAge = 48 * time.Hour

type pipeline struct {
	agg    *app.Aggregator
	budget *ratelimit.Budget
	store  storage.Store
	quotes *cache.Cache
}

func buildPipeline(ctx context.Context, cfg *config.Config) *pipeline {
	pool := relay.New(cfg.Relays, relay.WithRateLimit(cfg.RelayRatePerSec, len(cfg.Relays)))
	feedFetcher := feeds.NewFetcher(pool,
		feeds.WithTimeout(cfg.FeedTimeout),
		feeds.WithConcurrency(cfg.FeedConcurrency),
	)

	budget := ratelimit.NewBudget(cfg.ProviderDailyBudget)
	apiFetcher := providers.NewFetcher(
		providers.WithTimeout(cfg.ProviderTimeout),
		providers.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		providers.WithBudget(budget),
	)

	quotes := cache.New(cfg.IndexCacheTTL)
	p := &pipeline{budget: budget, quotes: quotes}

	var stores []storage.Store
	if cfg.SnapshotPath != "" {
		stores = append(stores, storage.NewFileStore(cfg.SnapshotPath, snapshotMaxAge))
	}
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.DedupPrefixLen)
		if err != nil {
			logger.Warn("PostgreSQL archive unavailable, continuing without it", "error", err)
		} else {
			stores = append(stores, pg)
		}
	}
	if len(stores) > 0 {
		p.store = storage.NewMultiStore(stores...)
	}

	p.agg = app.New(cfg, app.Deps{
		Feeds:  feedFetcher,
		APIs:   apiFetcher,
		Market: market.NewYahooProvider(quotes, cfg.IndexCacheTTL),
		Store:  p.store,
	})

	logger.Info("Pipeline ready",
		"feeds", len(cfg.Feeds),
		"relays", len(cfg.Relays),
		"providers", len(providers.Active(cfg.Providers)),
		"indices", len(cfg.Indices),
	)
	return p
}

func (p *pipeline) Close() {
	p.quotes.Close()
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
	}
}
