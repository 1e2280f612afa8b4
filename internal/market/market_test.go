package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	finance "github.com/piquette/finance-go"

	"github.com/deusflow/stockpulse/internal/cache"
	"github.com/deusflow/stockpulse/internal/config"
)

var indices = []config.Index{
	{Symbol: "^GSPC", Name: "S&P 500"},
	{Symbol: "^IXIC", Name: "NASDAQ"},
	{Symbol: "^DJI"},
}

func TestSnapshotsSkipFailedSymbols(t *testing.T) {
	fake := func(symbol string) (*finance.Quote, error) {
		switch symbol {
		case "^GSPC":
			q := &finance.Quote{RegularMarketPrice: 5100, RegularMarketChange: 51, RegularMarketChangePercent: 1}
			return q, nil
		case "^IXIC":
			return nil, errors.New("upstream down")
		default:
			q := &finance.Quote{RegularMarketChangePercent: -0.5}
			q.ShortName = "Dow Jones Industrial Average"
			return q, nil
		}
	}
	p := NewYahooProvider(nil, time.Minute, WithQuoteFunc(fake))

	snaps := p.Snapshots(context.Background(), indices)
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	if snaps[0].Symbol != "^GSPC" || snaps[0].Price != 5100 || snaps[0].ChangePercent != 1 {
		t.Errorf("unexpected first snapshot: %+v", snaps[0])
	}
	if snaps[1].Symbol != "^DJI" || snaps[1].Name != "Dow Jones Industrial Average" {
		t.Errorf("unexpected second snapshot: %+v", snaps[1])
	}
}

func TestSnapshotsRecoverFromPanics(t *testing.T) {
	fake := func(symbol string) (*finance.Quote, error) {
		if symbol == "^GSPC" {
			panic("malformed quote")
		}
		return nil, nil
	}
	p := NewYahooProvider(nil, time.Minute, WithQuoteFunc(fake))
	if snaps := p.Snapshots(context.Background(), indices); len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0", len(snaps))
	}
}

func TestSnapshotsAreCached(t *testing.T) {
	var calls atomic.Int32
	fake := func(symbol string) (*finance.Quote, error) {
		calls.Add(1)
		return &finance.Quote{RegularMarketChangePercent: 0.3}, nil
	}
	c := cache.New(0)
	defer c.Close()
	p := NewYahooProvider(c, time.Minute, WithQuoteFunc(fake))

	p.Snapshots(context.Background(), indices)
	p.Snapshots(context.Background(), indices)
	if calls.Load() != int32(len(indices)) {
		t.Errorf("quote called %d times, want %d", calls.Load(), len(indices))
	}
}

func TestSnapshotsHonourTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	fake := func(symbol string) (*finance.Quote, error) {
		<-block
		return &finance.Quote{}, nil
	}
	p := NewYahooProvider(nil, time.Minute, WithQuoteFunc(fake), WithTimeout(20*time.Millisecond))

	start := time.Now()
	snaps := p.Snapshots(context.Background(), indices[:1])
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0", len(snaps))
	}
	if time.Since(start) > time.Second {
		t.Error("Snapshots did not give up after the timeout")
	}
}
