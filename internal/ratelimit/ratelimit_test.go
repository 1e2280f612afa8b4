package ratelimit

import (
	"testing"
	"time"
)

func TestBudgetExhaustsAndResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := NewBudget(2)
	b.now = func() time.Time { return now }
	b.resetTime = now.Add(24 * time.Hour)

	for i := 0; i < 2; i++ {
		if err := b.Use("newsapi"); err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
	}
	if b.CanUse("newsapi") {
		t.Error("expected newsapi budget to be exhausted")
	}
	if err := b.Use("newsapi"); err == nil {
		t.Error("expected error once budget is exhausted")
	}
	if !b.CanUse("newsdata") {
		t.Error("other providers must keep their own budget")
	}

	now = now.Add(25 * time.Hour)
	if !b.CanUse("newsapi") {
		t.Error("expected budget to reset after a day")
	}
}

func TestBudgetOverrideAndUnlimited(t *testing.T) {
	b := NewBudget(0)
	b.SetLimit("alphavantage", 1)

	for i := 0; i < 50; i++ {
		if err := b.Use("newsdata"); err != nil {
			t.Fatalf("unlimited provider rejected: %v", err)
		}
	}
	if err := b.Use("alphavantage"); err != nil {
		t.Fatal(err)
	}
	if b.CanUse("alphavantage") {
		t.Error("expected override limit to apply")
	}

	stats := b.GetStats()
	if stats["newsdata_used"].(int) != 50 {
		t.Errorf("newsdata_used = %v", stats["newsdata_used"])
	}
}
