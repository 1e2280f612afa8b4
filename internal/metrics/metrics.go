package metrics

import (
	"sync"
	"time"
)

// Metrics holds pipeline counters exposed on /metrics and /health.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	Refreshes          int64
	LoadMores          int64
	FeedsSucceeded     int64
	FeedsFailed        int64
	RelayFailures      int64
	ProviderFailures   int64
	ItemsIngested      int64
	DuplicatesFiltered int64

	// Timings
	LastRefreshTime    time.Duration
	AverageRefreshTime time.Duration
	TotalRefreshTime   time.Duration
	RefreshCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementRefreshes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refreshes++
}

func (m *Metrics) IncrementLoadMores() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadMores++
}

func (m *Metrics) IncrementFeedsSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedsSucceeded++
}

func (m *Metrics) IncrementFeedsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedsFailed++
}

func (m *Metrics) IncrementRelayFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RelayFailures++
}

func (m *Metrics) IncrementProviderFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProviderFailures++
}

func (m *Metrics) AddItemsIngested(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsIngested += int64(n)
}

func (m *Metrics) AddDuplicatesFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered += int64(n)
}

func (m *Metrics) RecordRefreshTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRefreshTime = duration
	m.TotalRefreshTime += duration
	m.RefreshCount++
	m.AverageRefreshTime = m.TotalRefreshTime / time.Duration(m.RefreshCount)
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

// SetError marks the pipeline unhealthy until the next successful run.
func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"refreshes":               m.Refreshes,
		"load_mores":              m.LoadMores,
		"feeds_succeeded":         m.FeedsSucceeded,
		"feeds_failed":            m.FeedsFailed,
		"relay_failures":          m.RelayFailures,
		"provider_failures":       m.ProviderFailures,
		"items_ingested":          m.ItemsIngested,
		"duplicates_filtered":     m.DuplicatesFiltered,
		"last_refresh_time_ms":    m.LastRefreshTime.Milliseconds(),
		"average_refresh_time_ms": m.AverageRefreshTime.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
