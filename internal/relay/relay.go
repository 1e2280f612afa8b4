// Package relay reaches upstream documents through an ordered pool of
// interchangeable relay endpoints, remembering which one last worked.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/stockpulse/internal/logger"
	"github.com/deusflow/stockpulse/internal/metrics"
)

var (
	// ErrAllRelaysExhausted means every relay failed or timed out for one target.
	ErrAllRelaysExhausted = errors.New("all relays exhausted")
	// ErrMalformedDocument means a relay answered 2xx with a body that is not the expected document.
	ErrMalformedDocument = errors.New("malformed document")
)

const (
	userAgent      = "Mozilla/5.0 (compatible; stockpulse/1.0)"
	defaultMaxBody = 5 << 20
)

// AttemptError is a single failed relay attempt.
type AttemptError struct {
	Relay  int
	Target string
	Err    error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("relay %d for %s: %v", e.Relay, e.Target, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Validator inspects a successful response body. A non-nil error makes the
// pool treat the relay as failed and move on to the next one.
type Validator func(body []byte) error

type Pool struct {
	templates []string
	client    *http.Client
	limiter   *rate.Limiter
	maxBody   int64
	metrics   *metrics.Metrics

	mu     sync.Mutex
	cursor int
}

type Option func(*Pool)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pool) { p.client = c }
}

// WithRateLimit throttles outbound relay requests across all targets.
func WithRateLimit(perSec float64, burst int) Option {
	return func(p *Pool) {
		if perSec > 0 {
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func New(templates []string, opts ...Option) *Pool {
	p := &Pool{
		templates: append([]string(nil), templates...),
		client:    &http.Client{},
		maxBody:   defaultMaxBody,
		metrics:   metrics.Global,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildURL expands a relay template for target. {url} is replaced by the
// escaped target; templates without a placeholder get it appended.
func BuildURL(template, target string) string {
	escaped := url.QueryEscape(target)
	if strings.Contains(template, "{url}") {
		return strings.ReplaceAll(template, "{url}", escaped)
	}
	return template + escaped
}

func (p *Pool) Len() int { return len(p.templates) }

// Cursor is the index of the relay that will be tried first.
func (p *Pool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Pool) setCursor(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = i
}

// FetchThroughRelay tries each relay starting from the cursor, wrapping around,
// until one returns a 2xx body that passes validate within timeout. The cursor
// moves to the relay that succeeded.
func (p *Pool) FetchThroughRelay(ctx context.Context, target string, timeout time.Duration, validate Validator) ([]byte, int, error) {
	n := len(p.templates)
	if n == 0 {
		return nil, -1, fmt.Errorf("%w: no relays configured", ErrAllRelaysExhausted)
	}

	start := p.Cursor()
	var errs []error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		idx := (start + i) % n
		body, err := p.attempt(ctx, idx, target, timeout, validate)
		if err == nil {
			p.setCursor(idx)
			logger.Debug("relay succeeded", "stage", "relay", "relay", idx, "target", target)
			return body, idx, nil
		}

		p.metrics.IncrementRelayFailures()
		logger.Debug("relay failed", "stage", "relay", "relay", idx, "target", target, "error", err)
		errs = append(errs, &AttemptError{Relay: idx, Target: target, Err: err})
	}

	return nil, -1, fmt.Errorf("%w for %s: %w", ErrAllRelaysExhausted, target, errors.Join(errs...))
}

func (p *Pool) attempt(ctx context.Context, idx int, target string, timeout time.Duration, validate Validator) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, BuildURL(p.templates[idx], target), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading relay body: %w", err)
	}

	if validate != nil {
		if err := validate(body); err != nil {
			if !errors.Is(err, ErrMalformedDocument) {
				err = fmt.Errorf("%w: %v", ErrMalformedDocument, err)
			}
			return nil, err
		}
	}
	return body, nil
}
