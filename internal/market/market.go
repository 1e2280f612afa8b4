// Package market supplies index snapshots for the sentiment scorer.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"

	"github.com/deusflow/stockpulse/internal/cache"
	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/sentiment"
)

const (
	DefaultTTL     = time.Minute
	defaultTimeout = 10 * time.Second
)

// Provider returns snapshots for the indices it could quote. Symbols fail
// independently and are simply left out.
type Provider interface {
	Snapshots(ctx context.Context, indices []config.Index) []sentiment.IndexSnapshot
}

// QuoteFunc fetches one quote. quote.Get satisfies it.
type QuoteFunc func(symbol string) (*finance.Quote, error)

var errNoQuote = errors.New("no quote returned")

// YahooProvider quotes indices through finance-go and caches the results.
type YahooProvider struct {
	quote   QuoteFunc
	cache   *cache.Cache
	ttl     time.Duration
	timeout time.Duration
}

type Option func(*YahooProvider)

func WithQuoteFunc(fn QuoteFunc) Option {
	return func(p *YahooProvider) { p.quote = fn }
}

func WithTimeout(d time.Duration) Option {
	return func(p *YahooProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewYahooProvider(c *cache.Cache, ttl time.Duration, opts ...Option) *YahooProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	p := &YahooProvider{
		quote:   quote.Get,
		cache:   c,
		ttl:     ttl,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *YahooProvider) Snapshots(ctx context.Context, indices []config.Index) []sentiment.IndexSnapshot {
	results := make([]*sentiment.IndexSnapshot, len(indices))

	var wg sync.WaitGroup
	for i, idx := range indices {
		if cached, ok := p.cached(idx.Symbol); ok {
			results[i] = &cached
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := p.fetch(ctx, idx)
			if err != nil {
				logger.Warn("Index quote failed", "stage", "market", "source", idx.Symbol, "error", err)
				return
			}
			if p.cache != nil {
				p.cache.Set(cacheKey(idx.Symbol), snap, p.ttl)
			}
			results[i] = &snap
		}()
	}
	wg.Wait()

	out := make([]sentiment.IndexSnapshot, 0, len(indices))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (p *YahooProvider) cached(symbol string) (sentiment.IndexSnapshot, bool) {
	if p.cache == nil {
		return sentiment.IndexSnapshot{}, false
	}
	v, ok := p.cache.Get(cacheKey(symbol))
	if !ok {
		return sentiment.IndexSnapshot{}, false
	}
	snap, ok := v.(sentiment.IndexSnapshot)
	return snap, ok
}

// fetch runs the blocking quote call in its own goroutine so ctx and the
// timeout can abandon it.
func (p *YahooProvider) fetch(ctx context.Context, idx config.Index) (sentiment.IndexSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		snap sentiment.IndexSnapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("quote %s panicked: %v", idx.Symbol, r)}
			}
		}()
		q, err := p.quote(idx.Symbol)
		if err != nil {
			ch <- result{err: err}
			return
		}
		if q == nil {
			ch <- result{err: errNoQuote}
			return
		}
		name := idx.Name
		if name == "" {
			name = q.ShortName
		}
		ch <- result{snap: sentiment.IndexSnapshot{
			Symbol:        idx.Symbol,
			Name:          name,
			Price:         q.RegularMarketPrice,
			Change:        q.RegularMarketChange,
			ChangePercent: q.RegularMarketChangePercent,
		}}
	}()

	select {
	case <-ctx.Done():
		return sentiment.IndexSnapshot{}, ctx.Err()
	case r := <-ch:
		return r.snap, r.err
	}
}

func cacheKey(symbol string) string { return "quote:" + symbol }
