// Package providers queries structured news APIs (newsapi.org, newsdata.io,
// Alpha Vantage) and returns their articles as raw entries.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/ratelimit"
	"github.com/deusflow/stockpulse/internal/retry"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBody        = 5 << 20
)

// ProviderError is a failed provider query. It never affects sibling providers.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

var errBudgetExhausted = errors.New("daily request budget exhausted")

// FetchOptions control a single FetchFromAPIs call.
type FetchOptions struct {
	// LoadMore continues from the last page each provider returned.
	LoadMore bool
	// Query adds free-text terms where the provider supports them.
	Query string
}

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retry   retry.RetryConfig
	budget  *ratelimit.Budget
	metrics *metrics.Metrics

	mu      sync.Mutex
	cursors map[string]map[string]cursor
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(f *Fetcher) {
		f.retry.MaxAttempts = attempts
		f.retry.Delay = delay
	}
}

func WithBudget(b *ratelimit.Budget) Option {
	return func(f *Fetcher) { f.budget = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		retry: retry.RetryConfig{
			MaxAttempts: 2,
			Delay:       time.Second,
			Backoff:     true,
			Retryable:   Retryable,
		},
		metrics: metrics.Global,
		cursors: make(map[string]map[string]cursor),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Retryable reports whether a provider error is transient: network errors,
// timeouts, 429 and 5xx responses.
func Retryable(err error) bool {
	if errors.Is(err, errBudgetExhausted) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Active returns the providers that would be queried: enabled, of a known
// kind and with a credential.
func Active(descriptors []config.Provider) []config.Provider {
	var out []config.Provider
	for _, d := range descriptors {
		if !d.Enabled || d.APIKey() == "" || !Supported(d.Kind) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FetchFromAPIs queries every active provider in parallel. Failed providers
// contribute nothing; the rest are concatenated in descriptor order.
func (f *Fetcher) FetchFromAPIs(ctx context.Context, descriptors []config.Provider, opts FetchOptions) []news.RawEntry {
	active := Active(descriptors)
	if len(active) == 0 {
		logger.Debug("No active providers", "configured", len(descriptors))
		return []news.RawEntry{}
	}

	results := make([][]news.RawEntry, len(active))
	var wg sync.WaitGroup
	for i, d := range active {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := f.fetchProvider(ctx, d, opts)
			if err != nil {
				f.metrics.IncrementProviderFailures()
				logger.Warn("Provider failed", "stage", "provider", "source", d.Name, "error", err)
				return
			}
			logger.Debug("Provider loaded", "source", d.Name, "entries", len(entries), "load_more", opts.LoadMore)
			results[i] = entries
		}()
	}
	wg.Wait()

	all := []news.RawEntry{}
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (f *Fetcher) fetchProvider(ctx context.Context, d config.Provider, opts FetchOptions) ([]news.RawEntry, error) {
	k := kinds[d.Kind]

	var token string
	if opts.LoadMore {
		c, ok := f.cursor(d.Name, opts.Query)
		if ok && c.done {
			return []news.RawEntry{}, nil
		}
		token = c.next
	}

	target, err := k.buildURL(d.BaseURL, d.QueryParams, d.APIKey(), opts.Query, token)
	if err != nil {
		return nil, &ProviderError{Provider: d.Name, Err: err}
	}

	var p page
	err = retry.WithRetry(ctx, f.retry, func(ctx context.Context) error {
		if f.budget != nil {
			if err := f.budget.Use(d.Name); err != nil {
				return fmt.Errorf("%w: %v", errBudgetExhausted, err)
			}
		}
		body, err := f.get(ctx, target)
		if err != nil {
			return err
		}
		p, err = k.decode(d.Name, body, token)
		return err
	})
	if err != nil {
		return nil, &ProviderError{Provider: d.Name, Err: err}
	}

	f.setCursor(d.Name, opts.Query, !opts.LoadMore, cursor{
		next: p.next,
		done: k.pageParam == "" || p.next == "",
	})
	return p.entries, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stockpulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// cursor is a provider's continuation state for one query.
type cursor struct {
	next string
	done bool
}

func (f *Fetcher) cursor(provider, query string) (cursor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cursors[provider][query]
	return c, ok
}

// setCursor records continuation state. A fresh (non load-more) fetch drops
// the state of every other query for that provider.
func (f *Fetcher) setCursor(provider, query string, fresh bool, c cursor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fresh || f.cursors[provider] == nil {
		f.cursors[provider] = make(map[string]cursor)
	}
	f.cursors[provider][query] = c
}

// HasMore reports whether any provider may still return further pages.
// Providers that were never queried count as having more.
func (f *Fetcher) HasMore(descriptors []config.Provider, query string) bool {
	for _, d := range Active(descriptors) {
		c, ok := f.cursor(d.Name, query)
		if !ok || !c.done {
			return true
		}
	}
	return false
}
