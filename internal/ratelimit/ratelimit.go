package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/stockpulse/internal/logger"
)

// Budget caps how many requests each structured news provider may receive per
// day. Free API tiers are metered daily, so the counters reset every 24h.
type Budget struct {
	mu        sync.Mutex
	limits    map[string]int
	counts    map[string]int
	defLimit  int
	resetTime time.Time
	now       func() time.Time
}

// NewBudget creates a budget with a default per-provider limit. A limit of 0 means unlimited.
func NewBudget(defaultLimit int) *Budget {
	b := &Budget{
		limits:   make(map[string]int),
		counts:   make(map[string]int),
		defLimit: defaultLimit,
		now:      time.Now,
	}
	b.resetTime = b.now().Add(24 * time.Hour)
	return b
}

// SetLimit overrides the limit for one provider.
func (b *Budget) SetLimit(provider string, limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[provider] = limit
}

// CanUse reports whether provider still has budget left.
func (b *Budget) CanUse(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()

	limit := b.limitFor(provider)
	if limit > 0 && b.counts[provider] >= limit {
		logger.Warn("provider budget reached", "provider", provider, "used", b.counts[provider], "limit", limit)
		return false
	}
	return true
}

// Use consumes one request for provider.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()

	limit := b.limitFor(provider)
	if limit > 0 && b.counts[provider] >= limit {
		return fmt.Errorf("%s daily budget exceeded (%d/%d)", provider, b.counts[provider], limit)
	}

	b.counts[provider]++
	logger.Debug("provider budget used", "provider", provider, "used", b.counts[provider], "limit", limit)
	return nil
}

// GetStats returns usage per provider.
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := map[string]interface{}{
		"reset_time": b.resetTime.Format(time.RFC3339),
	}
	for provider, used := range b.counts {
		stats[provider+"_used"] = used
		stats[provider+"_limit"] = b.limitFor(provider)
	}
	return stats
}

func (b *Budget) limitFor(provider string) int {
	if l, ok := b.limits[provider]; ok {
		return l
	}
	return b.defLimit
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	if b.now().After(b.resetTime) {
		logger.Info("resetting provider budgets")
		b.counts = make(map[string]int)
		b.resetTime = b.now().Add(24 * time.Hour)
	}
}
