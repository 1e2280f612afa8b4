// Package feeds downloads RSS and Atom documents through the relay pool and
// turns them into raw entries for the normalizer.
package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/relay"
)

const (
	DefaultTimeout     = 8 * time.Second
	DefaultConcurrency = 4
)

// sniffWindow is how much of the body LooksLikeFeed inspects.
const sniffWindow = 4096

var feedMarkers = [][]byte{
	[]byte("<rss"),
	[]byte("<feed"),
	[]byte("<rdf:rdf"),
	[]byte("<item"),
	[]byte("<entry"),
}

// LooksLikeFeed is the relay validator for feed documents. Relays that answer
// 200 with an error page or a captcha are rejected here.
func LooksLikeFeed(body []byte) error {
	head := body
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	head = bytes.ToLower(head)
	for _, m := range feedMarkers {
		if bytes.Contains(head, m) {
			return nil
		}
	}
	// Large channel headers can push the first marker past the window.
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("<item")) || bytes.Contains(lower, []byte("<entry")) {
		return nil
	}
	return errors.New("body does not look like an RSS or Atom document")
}

// ParseDocument parses a feed body. Documents with <item> elements are read as
// RSS, otherwise documents with <entry> elements as Atom. Entries take the
// feed title as their source, falling back to the feed host.
func ParseDocument(body []byte, feedURL string) ([]news.RawEntry, error) {
	lower := bytes.ToLower(body)
	switch {
	case bytes.Contains(lower, []byte("<item")):
		var p rss.Parser
		feed, err := p.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: rss: %v", relay.ErrMalformedDocument, err)
		}
		source := sourceName(feed.Title, feedURL)
		entries := make([]news.RawEntry, 0, len(feed.Items))
		for i, it := range feed.Items {
			if it == nil {
				continue
			}
			entries = append(entries, news.RawEntry{
				Schema:  news.SchemaFeedItem,
				Source:  source,
				Ordinal: i,
				RSS:     it,
			})
		}
		return entries, nil

	case bytes.Contains(lower, []byte("<entry")):
		var p atom.Parser
		feed, err := p.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: atom: %v", relay.ErrMalformedDocument, err)
		}
		source := sourceName(feed.Title, feedURL)
		entries := make([]news.RawEntry, 0, len(feed.Entries))
		for i, en := range feed.Entries {
			if en == nil {
				continue
			}
			entries = append(entries, news.RawEntry{
				Schema:  news.SchemaFeedEntry,
				Source:  source,
				Ordinal: i,
				Atom:    en,
			})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("%w: no item or entry elements", relay.ErrMalformedDocument)
}

func sourceName(title, feedURL string) string {
	if title != "" {
		return title
	}
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		return u.Host
	}
	return feedURL
}

// Fetcher downloads feeds through a relay pool.
type Fetcher struct {
	pool        *relay.Pool
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Metrics
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func NewFetcher(pool *relay.Pool, opts ...Option) *Fetcher {
	f := &Fetcher{
		pool:        pool,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		metrics:     metrics.Global,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchFeed downloads and parses one feed. Parsing runs as the relay
// validator, so a relay whose body passes the sniff but does not parse is
// rotated past like any other failed relay. A feed that no relay could
// deliver yields no entries; the failure is logged.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) []news.RawEntry {
	var entries []news.RawEntry
	validate := func(body []byte) error {
		if err := LooksLikeFeed(body); err != nil {
			return err
		}
		parsed, err := ParseDocument(body, feedURL)
		if err != nil {
			return err
		}
		entries = parsed
		return nil
	}

	_, idx, err := f.pool.FetchThroughRelay(ctx, feedURL, f.timeout, validate)
	if err != nil {
		f.metrics.IncrementFeedsFailed()
		logger.Warn("Feed unavailable", "stage", "feed", "source", feedURL, "error", err)
		return []news.RawEntry{}
	}
	if entries == nil {
		entries = []news.RawEntry{}
	}

	f.metrics.IncrementFeedsSucceeded()
	logger.Debug("Feed loaded", "source", feedURL, "relay", idx, "entries", len(entries))
	return entries
}

// FetchAll attempts every feed with bounded concurrency. Entries are returned
// in configured feed order regardless of completion order.
func (f *Fetcher) FetchAll(ctx context.Context, feedURLs []string) []news.RawEntry {
	results := make([][]news.RawEntry, len(feedURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range feedURLs {
		g.Go(func() error {
			results[i] = f.FetchFeed(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var all []news.RawEntry
	ok := 0
	for _, r := range results {
		if len(r) > 0 {
			ok++
		}
		all = append(all, r...)
	}
	logger.Info("Processed feeds", "ok", ok, "total", len(feedURLs), "entries", len(all))
	return all
}
