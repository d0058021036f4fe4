// Package trigger fires the manual "please update now" request.
//
// A [Trigger] sends one POST with no body to the configured update URL and
// reports the decoded JSON reply. It never retries and never touches a
// display slot; the only observers are the logger, metrics and an optional
// hook.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/jpalmerr/statboard/internal/metrics"
	"github.com/jpalmerr/statboard/internal/poller"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcome labels for the manual update metric.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ErrNoURL is returned by [New] when the update URL is empty.
var ErrNoURL = errors.New("update url is required")

// Result is the outcome of one [Trigger.Fire].
type Result struct {
	// ID correlates log lines for this request.
	ID string

	// URL is the update endpoint.
	URL string

	// Value is the decoded JSON reply. Nil on failure.
	Value any

	// StatusCode is the HTTP status code, zero if no response arrived.
	StatusCode int

	// Latency is the time taken by the request.
	Latency time.Duration

	// Err is nil on success.
	Err error
}

// Trigger posts to the manual update endpoint.
type Trigger struct {
	url     string
	client  *poller.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	hook    func(Result)
	owned   bool
}

// Option configures a [Trigger].
type Option func(*Trigger)

// WithClient shares an HTTP client. Without it the Trigger creates its own.
func WithClient(c *poller.Client) Option {
	return func(t *Trigger) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Trigger) {
		t.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records every attempt.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trigger) {
		t.metrics = m
	}
}

// WithHook is called after every attempt, successful or not.
func WithHook(fn func(Result)) Option {
	return func(t *Trigger) {
		t.hook = fn
	}
}

// New creates a [Trigger] for url.
func New(url string, opts ...Option) (*Trigger, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	t := &Trigger{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = poller.NewClient()
		t.owned = true
	}
	return t, nil
}

// URL returns the update endpoint.
func (t *Trigger) URL() string {
	return t.url
}

// Fire sends one update request and waits for the reply.
//
// Success means the request completed and the body parsed as JSON, whatever
// the status code. Any other outcome is logged at error level and returned in
// Result.Err; nothing is retried.
func (t *Trigger) Fire(ctx context.Context) Result {
	result := Result{
		ID:  uuid.New().String(),
		URL: t.url,
	}

	resp := t.client.Fetch(ctx, http.MethodPost, t.url, nil, t.timeout)
	result.StatusCode = resp.StatusCode
	result.Latency = resp.Latency

	switch {
	case resp.Error != nil:
		result.Err = fmt.Errorf("manual update: %w", resp.Error)
	default:
		var v any
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			result.Err = fmt.Errorf("manual update: invalid JSON response: %w", err)
		} else {
			result.Value = v
		}
	}

	if result.Err != nil {
		t.metrics.ObserveManualUpdate(OutcomeError)
		t.logger.Error("manual update failed",
			"request_id", result.ID,
			"url", t.url,
			"status_code", result.StatusCode,
			"error", result.Err.Error(),
		)
	} else {
		t.metrics.ObserveManualUpdate(OutcomeSuccess)
		t.logger.Info("manual update successful",
			"request_id", result.ID,
			"url", t.url,
			"status_code", result.StatusCode,
			"latency_ms", result.Latency.Milliseconds(),
			"result", result.Value,
		)
	}

	if t.hook != nil {
		t.hook(result)
	}
	return result
}

// Close releases the Trigger's own client. Shared clients are left alone.
func (t *Trigger) Close() {
	if t.owned {
		t.client.Close()
	}
}
