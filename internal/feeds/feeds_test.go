package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/relay"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Market Desk</title>
<item><title>Stocks rally</title><link>https://desk.example/1</link><pubDate>Mon, 04 May 2026 08:00:00 +0000</pubDate></item>
<item><title>Bitcoin slips</title><link>https://desk.example/2</link></item>
</channel></rss>`

const atomDoc = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Atom Desk</title>
<entry><title>Fed holds</title><link href="https://atom.example/a"/><updated>2026-05-04T09:00:00Z</updated></entry>
</feed>`

func TestLooksLikeFeed(t *testing.T) {
	tests := []struct {
		body string
		ok   bool
	}{
		{rssDoc, true},
		{atomDoc, true},
		{`<rdf:RDF><item></item></rdf:RDF>`, true},
		{`<html><body>Access denied</body></html>`, false},
		{`{"error":"rate limited"}`, false},
		{"", false},
	}
	for _, tt := range tests {
		err := LooksLikeFeed([]byte(tt.body))
		if (err == nil) != tt.ok {
			t.Errorf("LooksLikeFeed(%.30q) err = %v, want ok=%v", tt.body, err, tt.ok)
		}
	}
}

func TestParseDocumentRSS(t *testing.T) {
	entries, err := ParseDocument([]byte(rssDoc), "https://desk.example/rss")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for i, e := range entries {
		if e.Schema != news.SchemaFeedItem || e.RSS == nil {
			t.Errorf("entry %d: schema %s rss=%v", i, e.Schema, e.RSS)
		}
		if e.Source != "Market Desk" || e.Ordinal != i {
			t.Errorf("entry %d: source %q ordinal %d", i, e.Source, e.Ordinal)
		}
	}
	if entries[0].RSS.Title != "Stocks rally" {
		t.Errorf("first title = %q", entries[0].RSS.Title)
	}
}

func TestParseDocumentAtom(t *testing.T) {
	entries, err := ParseDocument([]byte(atomDoc), "https://atom.example/feed")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if len(entries) != 1 || entries[0].Schema != news.SchemaFeedEntry || entries[0].Atom == nil {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Source != "Atom Desk" {
		t.Errorf("source = %q", entries[0].Source)
	}
}

func TestParseDocumentMalformed(t *testing.T) {
	_, err := ParseDocument([]byte(`<html><p>nope</p></html>`), "https://x.example/")
	if !errors.Is(err, relay.ErrMalformedDocument) {
		t.Errorf("err = %v, want ErrMalformedDocument", err)
	}
}

func TestSourceNameFallsBackToHost(t *testing.T) {
	if got := sourceName("", "https://feeds.example.com/rss"); got != "feeds.example.com" {
		t.Errorf("sourceName = %q", got)
	}
}

// relayServer serves documents keyed by the target URL it is asked to relay.
func relayServer(t *testing.T, docs map[string]string, delay map[string]time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, _ := url.QueryUnescape(r.URL.Query().Get("url"))
		if d := delay[target]; d > 0 {
			time.Sleep(d)
		}
		doc, ok := docs[target]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFeedThroughFallbackRelay(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>captcha</html>"))
	}))
	defer bad.Close()
	good := relayServer(t, map[string]string{"https://desk.example/rss": rssDoc}, nil)

	m := metrics.New()
	pool := relay.New([]string{bad.URL + "/?url={url}", good.URL + "/?url={url}"}, relay.WithMetrics(m))
	f := NewFetcher(pool, WithMetrics(m))

	entries := f.FetchFeed(context.Background(), "https://desk.example/rss")
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if pool.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", pool.Cursor())
	}
	stats := m.GetStats()
	if stats["feeds_succeeded"] != int64(1) {
		t.Errorf("feeds_succeeded = %v", stats["feeds_succeeded"])
	}
}

func TestFetchFeedRotatesPastUnparsableBody(t *testing.T) {
	challenge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><body><entry-form>Checking your browser</entry-form></body></html>`))
	}))
	defer challenge.Close()
	good := relayServer(t, map[string]string{"https://desk.example/rss": rssDoc}, nil)

	m := metrics.New()
	pool := relay.New([]string{challenge.URL + "/?url={url}", good.URL + "/?url={url}"}, relay.WithMetrics(m))
	f := NewFetcher(pool, WithMetrics(m))

	entries := f.FetchFeed(context.Background(), "https://desk.example/rss")
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if pool.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", pool.Cursor())
	}
	stats := m.GetStats()
	if stats["relay_failures"] != int64(1) {
		t.Errorf("relay_failures = %v, want 1", stats["relay_failures"])
	}
	if stats["feeds_failed"] != int64(0) {
		t.Errorf("feeds_failed = %v, want 0", stats["feeds_failed"])
	}
}

func TestFetchFeedExhaustedReturnsEmpty(t *testing.T) {
	srv := relayServer(t, map[string]string{}, nil)
	m := metrics.New()
	pool := relay.New([]string{srv.URL + "/?url={url}"}, relay.WithMetrics(m))
	f := NewFetcher(pool, WithMetrics(m))

	entries := f.FetchFeed(context.Background(), "https://gone.example/rss")
	if entries == nil || len(entries) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", entries)
	}
	if m.GetStats()["feeds_failed"] != int64(1) {
		t.Errorf("feeds_failed = %v", m.GetStats()["feeds_failed"])
	}
}

func TestFetchAllKeepsFeedOrder(t *testing.T) {
	docs := map[string]string{
		"https://one.example/rss": strings.Replace(rssDoc, "Market Desk", "One", 1),
		"https://two.example/rss": atomDoc,
	}
	// The first feed finishes last.
	srv := relayServer(t, docs, map[string]time.Duration{"https://one.example/rss": 50 * time.Millisecond})
	m := metrics.New()
	pool := relay.New([]string{srv.URL + "/?url={url}"}, relay.WithMetrics(m))
	f := NewFetcher(pool, WithMetrics(m), WithConcurrency(2), WithTimeout(2*time.Second))

	entries := f.FetchAll(context.Background(), []string{
		"https://one.example/rss",
		"https://missing.example/rss",
		"https://two.example/rss",
	})
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Source != "One" || entries[1].Source != "One" || entries[2].Source != "Atom Desk" {
		t.Errorf("unexpected order: %s, %s, %s", entries[0].Source, entries[1].Source, entries[2].Source)
	}
}
