package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/metrics"
	"github.com/jpalmerr/statboard/internal/notice"
)

const (
	// DefaultInterval is the time between poll cycles.
	DefaultInterval = 4 * time.Second

	// DefaultTimeLayout formats the last-updated slot.
	DefaultTimeLayout = "2006-01-02 15:04:05"
)

// Failure classes. Both are shown to the user the same way.
var (
	// ErrFetch wraps network-level failures.
	ErrFetch = errors.New("fetch failed")

	// ErrParse wraps responses whose body is not valid JSON.
	ErrParse = errors.New("invalid JSON response")
)

// Outcome labels used for metrics and results.
const (
	OutcomeRendered   = "rendered"
	OutcomeFetchError = "fetch_error"
	OutcomeParseError = "parse_error"
)

// OutcomeOf classifies a fetch error.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeRendered
	case errors.Is(err, ErrParse):
		return OutcomeParseError
	default:
		return OutcomeFetchError
	}
}

// SourceInfo contains the configuration needed to poll a single source.
type SourceInfo struct {
	// Slot is the display slot this source renders into. Unique per poller.
	Slot string

	// URL is the parsed URL template, see [ParseURLTemplate].
	URL *template.Template

	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
}

// Result holds the outcome of fetching one source.
type Result struct {
	// Slot is the source's display slot.
	Slot string

	// URL is the concrete URL fetched this cycle.
	URL string

	// Text is what was rendered into the slot. Empty on failure.
	Text string

	// StatusCode is the HTTP status code, zero if no response arrived.
	StatusCode int

	// Latency is the time taken by the request.
	Latency time.Duration

	// CheckedAt is when the fetch completed.
	CheckedAt time.Time

	// Cycle is the 1-based poll cycle the fetch belonged to.
	Cycle uint64

	// Err is nil on success, otherwise wraps [ErrFetch] or [ErrParse].
	Err error
}

// Notifier creates error notices. *notice.Board satisfies it.
type Notifier interface {
	Create(message string) notice.Notice
}

// Config configures a [Poller]. Sink and Notices are required.
type Config struct {
	Sources []SourceInfo

	// Interval between cycles. Defaults to [DefaultInterval].
	Interval time.Duration

	// IndexRange bounds the random sample index. Defaults to [DefaultIndexRange].
	IndexRange int

	// Rand draws sample indices. Defaults to [DefaultRand].
	Rand Rand

	Sink    display.Sink
	Notices Notifier

	// Client performs requests. Defaults to a new [Client].
	Client *Client

	// Now is the clock for the last-updated slot. Defaults to time.Now.
	Now func() time.Time

	// LastUpdatedSlot receives the cycle timestamp.
	// Defaults to display.SlotLastUpdated.
	LastUpdatedSlot string

	// TimeLayout formats the cycle timestamp. Defaults to [DefaultTimeLayout].
	TimeLayout string

	// OnResult, if set, is called after each fetch has been handled.
	OnResult func(Result)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Poller drives periodic retrieval and rendering of all sources.
//
// A Poller can be run on its own timer with [Poller.Start], or single-stepped
// with [Poller.PollOnce]. All methods are safe for concurrent use.
type Poller struct {
	cfg    Config
	client *Client
	logger *slog.Logger
	cycles atomic.Uint64

	// stopCtx is cancelled by Stop and cancels every in-flight fetch,
	// whichever context it was started with.
	stopCtx  context.Context
	stopFunc context.CancelFunc
	inflight sync.WaitGroup
	loop     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a [Poller]. It does not start polling.
func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.IndexRange <= 0 {
		cfg.IndexRange = DefaultIndexRange
	}
	if cfg.Rand == nil {
		cfg.Rand = DefaultRand
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LastUpdatedSlot == "" {
		cfg.LastUpdatedSlot = display.SlotLastUpdated
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	client := cfg.Client
	if client == nil {
		client = NewClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stopCtx, stopFunc := context.WithCancel(context.Background())
	return &Poller{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		stopCtx:  stopCtx,
		stopFunc: stopFunc,
	}
}

// Cycles returns the number of cycles started so far.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// Start runs one cycle immediately and then one per interval, in a
// background goroutine, until [Poller.Stop] is called or ctx is cancelled.
//
// Start does not wait for a cycle's fetches before the next tick: a slow or
// hung source only affects its own fetch. Start is idempotent, and a no-op
// after Stop.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.stopCtx, cancel)
	p.loop.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.loop.Done()
		defer stop()
		defer cancel()

		p.PollOnce(loopCtx)

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.PollOnce(loopCtx)
			}
		}
	}()
}

// Stop halts the loop, cancels in-flight fetches and waits for them.
// Stop is idempotent and safe to call before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.stopFunc()
	p.loop.Wait()
	p.inflight.Wait()
	p.client.Close()
}

// PollOnce runs a single poll cycle and returns without waiting for it.
//
// The last-updated slot is rendered first, then every source is fetched on
// its own goroutine. The returned channel is closed once all of this cycle's
// fetches have been handled. After Stop, PollOnce does nothing and returns a
// closed channel.
func (p *Poller) PollOnce(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		close(done)
		return done
	}
	p.inflight.Add(len(p.cfg.Sources))
	p.mu.Unlock()

	cycle := p.cycles.Add(1)
	p.cfg.Metrics.ObserveCycle()

	stamp := p.cfg.Now().Format(p.cfg.TimeLayout)
	if err := p.cfg.Sink.Render(p.cfg.LastUpdatedSlot, stamp); err != nil {
		p.logger.Error("render failed", "slot", p.cfg.LastUpdatedSlot, "error", err)
	}

	var cycleWG sync.WaitGroup
	cycleWG.Add(len(p.cfg.Sources))
	for _, src := range p.cfg.Sources {
		// draw indices here, sequentially, so Rand need not be goroutine-safe
		url, urlErr := RenderURL(src.URL, URLParams{Index: p.cfg.Rand.IntN(p.cfg.IndexRange)})

		go func() {
			defer p.inflight.Done()
			defer cycleWG.Done()

			var result Result
			if urlErr != nil {
				result = Result{
					Slot:      src.Slot,
					CheckedAt: p.cfg.Now(),
					Cycle:     cycle,
					Err:       fmt.Errorf("%w: building url: %w", ErrFetch, urlErr),
				}
			} else {
				result = p.fetch(ctx, src, url, cycle)
			}
			p.handle(result)
		}()
	}

	go func() {
		cycleWG.Wait()
		close(done)
	}()
	return done
}

// fetch requests one source and converts the body to its display text.
func (p *Poller) fetch(ctx context.Context, src SourceInfo, url string, cycle uint64) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.stopCtx, cancel)
	defer stop()

	resp := p.client.Fetch(ctx, src.Method, url, src.Headers, src.Timeout)

	result := Result{
		Slot:       src.Slot,
		URL:        url,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		CheckedAt:  p.cfg.Now(),
		Cycle:      cycle,
	}
	if resp.Error != nil {
		result.Err = fmt.Errorf("%w: %w", ErrFetch, resp.Error)
		return result
	}

	text, err := stringify(resp.Body)
	if err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrParse, err)
		return result
	}
	result.Text = text
	return result
}

// handle renders a successful result or raises a notice for a failed one.
func (p *Poller) handle(result Result) {
	p.cfg.Metrics.ObservePoll(result.Slot, OutcomeOf(result.Err), result.Latency)

	if result.Err != nil {
		p.logger.Warn("poll failed",
			"slot", result.Slot,
			"url", result.URL,
			"cycle", result.Cycle,
			"error", result.Err.Error(),
		)
		p.cfg.Notices.Create(result.Err.Error())
	} else {
		if err := p.cfg.Sink.Render(result.Slot, result.Text); err != nil {
			p.logger.Error("render failed", "slot", result.Slot, "error", err)
		}
		p.logger.Debug("received data",
			"slot", result.Slot,
			"url", result.URL,
			"status_code", result.StatusCode,
			"latency_ms", result.Latency.Milliseconds(),
			"bytes", len(result.Text),
		)
	}

	if p.cfg.OnResult != nil {
		p.cfg.OnResult(result)
	}
}

// stringify returns the compact JSON text of body. Key order and literal
// values are kept as sent, so parsing the text yields the same value as
// parsing the body.
func stringify(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}
