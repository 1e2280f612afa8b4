// Package app wires the fetchers, normalizer, merge state, pagination and
// sentiment scorer into one aggregate that a presentation layer can read.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/market"
	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/pagination"
	"github.com/deusflow/stockpulse/internal/providers"
	"github.com/deusflow/stockpulse/internal/sentiment"
	"github.com/deusflow/stockpulse/internal/storage"
)

var (
	// ErrNoDataAvailable means every source failed or returned nothing. The
	// previous items, if any, are kept.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrNoMoreAvailable means a load-more fetch found no new items. It can be
	// retried once the retry window has passed.
	ErrNoMoreAvailable = errors.New("no more items available")
	// ErrRefreshInProgress means a refresh was requested while another one ran.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrUnknownCategory   = errors.New("unknown category")
)

// FeedSource fetches all configured feeds.
type FeedSource interface {
	FetchAll(ctx context.Context, feedURLs []string) []news.RawEntry
}

// APISource queries the structured news providers.
type APISource interface {
	FetchFromAPIs(ctx context.Context, descriptors []config.Provider, opts providers.FetchOptions) []news.RawEntry
}

// Deps are the collaborators of an Aggregator. Market and Store are optional.
type Deps struct {
	Feeds   FeedSource
	APIs    APISource
	Market  market.Provider
	Store   storage.Store
	Metrics *metrics.Metrics
}

// Result describes one refresh or load-more cycle.
type Result struct {
	Cycle   string        `json:"cycle"`
	Stage   string        `json:"stage"` // apis, feeds, window or none
	Added   int           `json:"added"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed"`
	RetryAt *time.Time    `json:"retryAt,omitempty"`
	Err     error         `json:"-"`
}

type Aggregator struct {
	cfg   *config.Config
	deps  Deps
	now   func() time.Time
	newID func() string

	// mu serializes every mutation of st. Network calls never run under it.
	mu sync.Mutex
	st state

	refreshing atomic.Bool
	ordinal    atomic.Int64

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

func New(cfg *config.Config, deps Deps) *Aggregator {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	return &Aggregator{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
		st:    state{cursor: pagination.NewCursor(cfg.LoadMoreRetryAfter)},
		subs:  make(map[int]chan Snapshot),
	}
}

// Restore seeds an empty aggregate from the store.
func (a *Aggregator) Restore(ctx context.Context) error {
	if a.deps.Store == nil {
		return nil
	}
	items, err := a.deps.Store.Load(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	a.mu.Lock()
	if len(a.st.items) == 0 {
		a.st.items = news.Dedup(items, a.cfg.DedupPrefixLen)
	}
	n := len(a.st.items)
	a.mu.Unlock()

	logger.Info("Restored items from store", "items", n)
	a.publish()
	return nil
}

// Refresh runs a full fetch cycle: structured APIs first, feeds when the APIs
// return nothing. The item list is replaced only when the cycle produced at
// least one item; otherwise Result.Err is ErrNoDataAvailable and the previous
// list stays.
func (a *Aggregator) Refresh(ctx context.Context) Result {
	if !a.refreshing.CompareAndSwap(false, true) {
		return Result{Stage: "none", Err: ErrRefreshInProgress}
	}
	defer a.refreshing.Store(false)

	start := a.now()
	res := Result{Cycle: a.newID()}
	log := logger.With("cycle", res.Cycle)
	a.deps.Metrics.IncrementRefreshes()

	res.Stage = "apis"
	normalized := a.normalize(a.deps.APIs.FetchFromAPIs(ctx, a.cfg.Providers, providers.FetchOptions{}))
	if len(normalized) == 0 {
		log.Info("Structured APIs returned no usable items, falling back to feeds")
		res.Stage = "feeds"
		normalized = a.normalize(a.deps.Feeds.FetchAll(ctx, a.cfg.Feeds))
	}

	items := news.Dedup(normalized, a.cfg.DedupPrefixLen)
	a.deps.Metrics.AddDuplicatesFiltered(len(normalized) - len(items))

	a.mu.Lock()
	if len(items) == 0 {
		res.Stage = "none"
		res.Total = len(a.st.items)
		a.mu.Unlock()

		res.Err = ErrNoDataAvailable
		res.Elapsed = a.now().Sub(start)
		a.deps.Metrics.SetError(ErrNoDataAvailable.Error())
		log.Warn("Refresh produced no items, keeping previous state", "stage", "refresh", "kept", res.Total)
		return res
	}
	a.st.items = items
	a.st.cursor.Reset()
	a.st.lastRefresh = a.now()
	a.st.lastCycle = res.Cycle
	res.Added = len(items)
	res.Total = len(items)
	saved := a.copyItems()
	a.mu.Unlock()

	res.Elapsed = a.now().Sub(start)
	a.deps.Metrics.AddItemsIngested(len(items))
	a.deps.Metrics.RecordRefreshTime(res.Elapsed)
	a.deps.Metrics.SetLastRun()
	log.Info("Refresh complete", "source", res.Stage, "items", len(items), "elapsed", res.Elapsed)

	a.persist(ctx, saved)
	a.publish()
	return res
}

// LoadMore exposes the next page. It fetches upstream only when the filtered
// list is already fully visible: APIs with category terms first, then feeds.
func (a *Aggregator) LoadMore(ctx context.Context) Result {
	start := a.now()
	res := Result{Cycle: a.newID()}
	log := logger.With("cycle", res.Cycle)
	a.deps.Metrics.IncrementLoadMores()

	a.mu.Lock()
	category := a.st.category
	if a.growLocked() {
		res.Stage = "window"
		res.Total = len(a.st.items)
		a.mu.Unlock()
		a.publish()
		return res
	}
	exhausted, until := a.st.cursor.Exhausted(a.now())
	a.mu.Unlock()

	if exhausted {
		res.Stage = "none"
		res.RetryAt = &until
		res.Err = ErrNoMoreAvailable
		return res
	}

	res.Stage = "apis"
	entries := a.deps.APIs.FetchFromAPIs(ctx, a.cfg.Providers, providers.FetchOptions{
		LoadMore: true,
		Query:    providers.CategoryQuery(category),
	})
	added, total := a.mergeAndGrow(entries)
	if added == 0 {
		res.Stage = "feeds"
		added, total = a.mergeAndGrow(a.deps.Feeds.FetchAll(ctx, a.cfg.Feeds))
	}
	res.Added = added
	res.Total = total
	res.Elapsed = a.now().Sub(start)

	if added == 0 {
		a.mu.Lock()
		a.st.cursor.MarkExhausted(a.now())
		_, until := a.st.cursor.Exhausted(a.now())
		a.mu.Unlock()

		res.Stage = "none"
		res.RetryAt = &until
		res.Err = ErrNoMoreAvailable
		log.Info("Load more found nothing new", "retry_at", until)
		a.publish()
		return res
	}

	log.Info("Load more merged new items", "source", res.Stage, "added", added, "total", total)
	a.deps.Metrics.AddItemsIngested(added)
	a.persist(ctx, a.Snapshot().Items)
	a.publish()
	return res
}

func (a *Aggregator) mergeAndGrow(entries []news.RawEntry) (added, total int) {
	incoming := a.normalize(entries)

	a.mu.Lock()
	defer a.mu.Unlock()

	merged, added := news.Merge(a.st.items, incoming, a.cfg.DedupPrefixLen)
	a.deps.Metrics.AddDuplicatesFiltered(len(incoming) - added)
	if added == 0 {
		return 0, len(a.st.items)
	}
	a.st.items = merged
	a.st.cursor.ClearExhausted()
	a.growLocked()
	return added, len(merged)
}

func (a *Aggregator) growLocked() bool {
	filtered := pagination.Filter(a.st.items, a.st.category)
	if !a.st.cursor.CanGrow(len(filtered), a.cfg.PageSize) {
		return false
	}
	a.st.cursor.Grow()
	return true
}

// SetCategory switches the filter and returns to the first page. "" or "all"
// clears it.
func (a *Aggregator) SetCategory(c string) error {
	cat, ok := news.ParseCategory(c)
	if !ok {
		return ErrUnknownCategory
	}
	a.mu.Lock()
	a.st.category = cat
	a.st.cursor.Reset()
	a.mu.Unlock()

	a.publish()
	return nil
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.snapshot(a.cfg.PageSize, a.now())
}

// Sentiment scores the current items against fresh index snapshots.
func (a *Aggregator) Sentiment(ctx context.Context) sentiment.Result {
	var snaps []sentiment.IndexSnapshot
	if a.deps.Market != nil {
		snaps = a.deps.Market.Snapshots(ctx, a.cfg.Indices)
	}
	a.mu.Lock()
	items := a.copyItems()
	a.mu.Unlock()
	return sentiment.Compute(items, snaps)
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow subscribers only see the latest snapshot.
func (a *Aggregator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *Aggregator) publish() {
	snap := a.Snapshot()

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot in favour of the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Run refreshes immediately and then every RefreshInterval until ctx is done.
// Ticks that arrive while a refresh is still running are skipped.
func (a *Aggregator) Run(ctx context.Context) {
	a.Refresh(ctx)

	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go func() {
				if res := a.Refresh(ctx); errors.Is(res.Err, ErrRefreshInProgress) {
					logger.Debug("Auto-refresh skipped, refresh in progress")
				}
			}()
		}
	}
}

// normalize stamps every entry with a process-wide ordinal so item IDs stay
// unique across cycles, then maps them to canonical items.
func (a *Aggregator) normalize(entries []news.RawEntry) []news.Item {
	for i := range entries {
		entries[i].Ordinal = int(a.ordinal.Add(1))
	}
	return news.NormalizeAll(entries, a.now())
}

func (a *Aggregator) copyItems() []news.Item {
	items := make([]news.Item, len(a.st.items))
	copy(items, a.st.items)
	return items
}

func (a *Aggregator) persist(ctx context.Context, items []news.Item) {
	if a.deps.Store == nil {
		return
	}
	if err := a.deps.Store.Save(ctx, items); err != nil {
		logger.Warn("Failed to persist items", "stage", "storage", "error", err)
	}
}
