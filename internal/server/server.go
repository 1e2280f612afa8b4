// Package server exposes the aggregate over HTTP and pushes snapshots to
// websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/deusflow/stockpulse/internal/app"
	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/metrics"
	"github.com/deusflow/stockpulse/internal/news"
	"github.com/deusflow/stockpulse/internal/pagination"
	"github.com/deusflow/stockpulse/internal/ratelimit"
)

const (
	wsWriteTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	agg            *app.Aggregator
	metrics        *metrics.Metrics
	budget         *ratelimit.Budget
	originPatterns []string
	mux            *http.ServeMux
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBudget adds provider budget usage to /metrics.
func WithBudget(b *ratelimit.Budget) Option {
	return func(s *Server) { s.budget = b }
}

// WithOriginPatterns lists the cross-origin hosts allowed to open /ws.
// Same-origin requests are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

func New(agg *app.Aggregator, opts ...Option) *Server {
	s := &Server{agg: agg, metrics: metrics.Global, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/news", s.handleNews)
	s.mux.HandleFunc("POST /api/category", s.handleSetCategory)
	s.mux.HandleFunc("POST /api/news/more", s.handleLoadMore)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/sentiment", s.handleSentiment)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.agg.Snapshot()
	status := "ok"
	if !s.metrics.Healthy() {
		status = "degraded"
	}
	if snap.NoData {
		status = "no_data"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"items":        snap.Total,
		"last_refresh": snap.LastRefresh,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()
	if s.budget != nil {
		stats["provider_budget"] = s.budget.GetStats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleNews returns the current snapshot. ?category= and ?page= shape the
// window for this request only; the shared filter and cursor do not move.
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap := s.agg.Snapshot()
	reshape := false

	if q.Has("category") {
		cat, ok := news.ParseCategory(q.Get("category"))
		if !ok {
			writeError(w, http.StatusBadRequest, app.ErrUnknownCategory)
			return
		}
		if cat != snap.Category {
			snap.Category = cat
			snap.PageIndex = 1
			reshape = true
		}
	}
	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			writeError(w, http.StatusBadRequest, errors.New("page must be a positive integer"))
			return
		}
		snap.PageIndex = page
		reshape = true
	}

	if reshape {
		snap.Visible = pagination.Window(snap.Items, snap.Category, snap.PageSize, snap.PageIndex)
		snap.FilteredTotal = len(pagination.Filter(snap.Items, snap.Category))
		snap.HasMore = len(snap.Visible) < snap.FilteredTotal || snap.ExhaustedUntil == nil
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetCategory switches the shared filter that load-more and websocket
// clients follow.
func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.SetCategory(r.FormValue("category")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agg.Snapshot())
}

type cycleResponse struct {
	Result   app.Result   `json:"result"`
	Error    string       `json:"error,omitempty"`
	Snapshot app.Snapshot `json:"snapshot"`
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	res := s.agg.LoadMore(r.Context())
	s.writeCycle(w, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.agg.Refresh(r.Context())
	s.writeCycle(w, res)
}

func (s *Server) writeCycle(w http.ResponseWriter, res app.Result) {
	status := http.StatusOK
	if errors.Is(res.Err, app.ErrRefreshInProgress) {
		status = http.StatusConflict
	}
	resp := cycleResponse{Result: res, Snapshot: s.agg.Snapshot()}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Sentiment(r.Context()))
}

// handleWS sends the current snapshot and then one per change until the
// client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send anything; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(r.Context())

	updates, cancel := s.agg.Subscribe()
	defer cancel()

	if err := writeSnapshot(ctx, conn, s.agg.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

type wsMessage struct {
	Type     string       `json:"type"`
	Snapshot app.Snapshot `json:"snapshot"`
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap app.Snapshot) error {
	data, err := json.Marshal(wsMessage{Type: "snapshot", Snapshot: snap})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// categories lists valid filters for clients.
var categories = func() []string {
	out := []string{"all"}
	for _, c := range news.AllCategories() {
		out = append(out, string(c))
	}
	return out
}()
