package cache

import (
	"testing"
	"time"
)

func TestSetGetExpires(t *testing.T) {
	c := New(0)
	defer c.Close()

	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("^GSPC", 1.5, time.Minute)
	v, ok := c.Get("^GSPC")
	if !ok || v.(float64) != 1.5 {
		t.Fatalf("expected cached value, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("^GSPC"); ok {
		t.Error("expected entry to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	c := New(0)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)

	now = now.Add(time.Minute)
	c.cleanup()

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after cleanup, got %d", c.Len())
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected long-lived entry to survive")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(time.Hour)
	c.Close()
	c.Close()
}
