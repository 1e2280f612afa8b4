package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/deusflow/stockpulse/internal/app"
	"github.com/deusflow/stockpulse/internal/config"
	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/providers"
	"github.com/deusflow/stockpulse/internal/ratelimit"
)

type stubAPIs struct{ entries []news.RawEntry }

func (s stubAPIs) FetchFromAPIs(context.Context, []config.Provider, providers.FetchOptions) []news.RawEntry {
	out := make([]news.RawEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type stubFeeds struct{}

func (stubFeeds) FetchAll(context.Context, []string) []news.RawEntry { return nil }

func entry(title string) news.RawEntry {
	return news.RawEntry{Schema: news.SchemaNewsAPI, Source: "NewsAPI", NewsAPI: &news.NewsAPIArticle{
		Title:       title,
		URL:         "https://example.com/" + title,
		PublishedAt: "2026-05-04T10:00:00Z",
	}}
}

func newTestServer(t *testing.T, entries ...news.RawEntry) (*httptest.Server, *app.Aggregator) {
	t.Helper()
	cfg := &config.Config{PageSize: 2, DedupPrefixLen: 50, LoadMoreRetryAfter: time.Minute, RefreshInterval: time.Hour}
	m := metrics.New()
	agg := app.New(cfg, app.Deps{APIs: stubAPIs{entries: entries}, Feeds: stubFeeds{}, Metrics: m})
	srv := New(agg, WithMetrics(m), WithBudget(ratelimit.NewBudget(10)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, agg
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthReportsNoData(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "no_data" {
		t.Errorf("status %d body %v", resp.StatusCode, body)
	}
}

func TestRefreshAndNews(t *testing.T) {
	ts, agg := newTestServer(t, entry("Bitcoin slides"), entry("Fed holds rates"), entry("Dow gains"))

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var cycle struct {
		Result   app.Result `json:"result"`
		Error    string     `json:"error"`
		Snapshot struct {
			Total int `json:"total"`
		} `json:"snapshot"`
	}
	decode(t, resp, &cycle)
	if cycle.Error != "" || cycle.Snapshot.Total != 3 {
		t.Fatalf("unexpected refresh response: %+v", cycle)
	}

	resp, err = http.Get(ts.URL + "/api/news?category=crypto")
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		Items    []news.Item `json:"items"`
		Category string      `json:"category"`
	}
	decode(t, resp, &snap)
	if snap.Category != "crypto" || len(snap.Items) != 1 || !snap.Items[0].IsFeatured {
		t.Errorf("unexpected news response: %+v", snap)
	}
	if shared := agg.Snapshot().Category; shared != "" {
		t.Errorf("GET changed the shared category to %q", shared)
	}

	resp, err = http.Get(ts.URL + "/api/news?category=all&page=2")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &snap)
	if len(snap.Items) != 3 {
		t.Errorf("page 2 has %d items, want 3", len(snap.Items))
	}
}

func TestSetCategoryIsShared(t *testing.T) {
	ts, agg := newTestServer(t, entry("Bitcoin slides"), entry("Fed holds rates"), entry("Dow gains"))
	agg.Refresh(context.Background())

	resp, err := http.PostForm(ts.URL+"/api/category", url.Values{"category": {"crypto"}})
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		Items    []news.Item `json:"items"`
		Category string      `json:"category"`
	}
	decode(t, resp, &snap)
	if resp.StatusCode != http.StatusOK || snap.Category != "crypto" || len(snap.Items) != 1 {
		t.Errorf("status %d snapshot %+v", resp.StatusCode, snap)
	}
	if shared := agg.Snapshot().Category; shared != news.Crypto {
		t.Errorf("shared category = %q, want crypto", shared)
	}

	resp, err = http.PostForm(ts.URL+"/api/category", url.Values{"category": {"bonds"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown category: status %d, want 400", resp.StatusCode)
	}
}

func TestNewsRejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, q := range []string{"?category=bonds", "?page=0", "?page=x"} {
		resp, err := http.Get(ts.URL + "/api/news" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestLoadMoreReportsNoMore(t *testing.T) {
	ts, agg := newTestServer(t, entry("Only story"))
	agg.Refresh(context.Background())

	resp, err := http.Post(ts.URL+"/api/news/more", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["error"] != app.ErrNoMoreAvailable.Error() {
		t.Errorf("status %d error %v", resp.StatusCode, body["error"])
	}
}

func TestMetricsAndSentiment(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var stats map[string]any
	decode(t, resp, &stats)
	if _, ok := stats["provider_budget"]; !ok {
		t.Errorf("metrics missing provider_budget: %v", stats)
	}

	resp, err = http.Get(ts.URL + "/api/sentiment")
	if err != nil {
		t.Fatal(err)
	}
	var sent struct {
		Score int    `json:"score"`
		Label string `json:"label"`
	}
	decode(t, resp, &sent)
	if sent.Score != 50 || sent.Label != "Neutral" {
		t.Errorf("unexpected sentiment: %+v", sent)
	}
}

func TestWebsocketPushesSnapshots(t *testing.T) {
	ts, agg := newTestServer(t, entry("Stocks rally"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	read := func() wsMessage {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	if first := read(); first.Type != "snapshot" || !first.Snapshot.NoData {
		t.Fatalf("unexpected initial message: %+v", first)
	}

	agg.Refresh(context.Background())
	if next := read(); next.Snapshot.Total != 1 {
		t.Errorf("pushed snapshot total = %d, want 1", next.Snapshot.Total)
	}
}

func TestWebsocketOriginCheck(t *testing.T) {
	cfg := &config.Config{PageSize: 2, DedupPrefixLen: 50, LoadMoreRetryAfter: time.Minute, RefreshInterval: time.Hour}
	agg := app.New(cfg, app.Deps{APIs: stubAPIs{}, Feeds: stubFeeds{}, Metrics: metrics.New()})
	ts := httptest.NewServer(New(agg, WithOriginPatterns("dash.example.com")).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"https://dash.example.com", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
				HTTPHeader: http.Header{"Origin": {tt.origin}},
			})
			if !tt.ok {
				if err == nil {
					conn.CloseNow()
					t.Fatal("cross-origin dial succeeded")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("want 403, got %v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			conn.Close(websocket.StatusNormalClosure, "done")
		})
	}
}
