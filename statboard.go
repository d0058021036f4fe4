package statboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/statboard/dashboard"
	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/metrics"
	"github.com/jpalmerr/statboard/internal/notice"
	"github.com/jpalmerr/statboard/internal/poller"
	"github.com/jpalmerr/statboard/internal/server"
	"github.com/jpalmerr/statboard/internal/store"
	"github.com/jpalmerr/statboard/internal/trigger"
	"github.com/jpalmerr/statboard/internal/tui"
)

const (
	defaultPollingInterval = poller.DefaultInterval
	defaultPort            = 8080
	defaultNoticeTTL       = notice.DefaultTTL
	defaultIndexRange      = poller.DefaultIndexRange
	defaultUpdateBurst     = 3
)

var defaultUpdateLimit = rate.Every(time.Second)

// ErrNoUpdateURL is returned by [StatBoard.TriggerUpdate] when no update
// endpoint is configured.
var ErrNoUpdateURL = errors.New("no update URL configured")

// StatBoard polls JSON sources into named display slots and shows them in a
// browser or a terminal.
//
// StatBoard is created using [New] with functional options and run with
// [StatBoard.Start] (web dashboard) or [StatBoard.Watch] (terminal). The
// caller controls the lifecycle via the context. A StatBoard runs at most one
// of Start or Watch at a time.
type StatBoard struct {
	title           string
	sources         []Source
	pollingInterval time.Duration
	port            int
	noticeTTL       time.Duration
	indexRange      int
	rand            poller.Rand
	updateURL       string
	updateLimit     rate.Limit
	updateBurst     int
	logger          *slog.Logger
	resultCallbacks []func(PollResult)
	updateCallbacks []func(UpdateResult)

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// cbMu serializes callbacks; fetches finish on many goroutines.
	cbMu sync.Mutex
}

// New creates a new [StatBoard] instance with the given options.
//
// At least one source must be configured via [WithSource] or [WithSources].
// Other options have defaults:
//   - Polling interval: 4 seconds
//   - Port: 8080
//   - Notice TTL: 7 seconds
//   - Index range: 10
//   - Manual update rate: 1/s, burst 3
//
// Returns an error if no sources are configured, if two sources share a slot,
// or if any option is invalid.
func New(opts ...Option) (*StatBoard, error) {
	cfg := &sbConfig{
		sources:         []Source{},
		pollingInterval: defaultPollingInterval,
		port:            defaultPort,
		noticeTTL:       defaultNoticeTTL,
		indexRange:      defaultIndexRange,
		rand:            poller.DefaultRand,
		updateLimit:     defaultUpdateLimit,
		updateBurst:     defaultUpdateBurst,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.sources) == 0 {
		return nil, errors.New("at least one source is required")
	}

	// every slot is owned by exactly one source
	seen := make(map[string]bool, len(cfg.sources))
	for _, src := range cfg.sources {
		if src.tmpl == nil {
			return nil, errors.New("sources must be created with NewSource")
		}
		if seen[src.slot] {
			return nil, fmt.Errorf("duplicate source slot: %q", src.slot)
		}
		seen[src.slot] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &StatBoard{
		title:           cfg.title,
		sources:         cfg.sources,
		pollingInterval: cfg.pollingInterval,
		port:            cfg.port,
		noticeTTL:       cfg.noticeTTL,
		indexRange:      cfg.indexRange,
		rand:            cfg.rand,
		updateURL:       cfg.updateURL,
		updateLimit:     cfg.updateLimit,
		updateBurst:     cfg.updateBurst,
		logger:          logger,
		resultCallbacks: cfg.resultCallbacks,
		updateCallbacks: cfg.updateCallbacks,
		registry:        reg,
		metrics:         metrics.New(reg),
	}, nil
}

// Start polls the sources and serves the web dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// All sources are polled immediately, then once per polling interval, and the
// dashboard is available at http://localhost:<port>.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (sb *StatBoard) Start(ctx context.Context) error {
	sb.logger.Info("statboard starting", "source_count", len(sb.sources))
	sb.logger.Info("polling configured", "interval", sb.pollingInterval.String())
	sb.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", sb.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	slotStore := store.NewMemoryStore(sb.Slots())
	rt := sb.newRuntime(slotStore, slotStore)

	var update server.UpdateFunc
	if rt.trigger != nil {
		update = func(ctx context.Context) error {
			return rt.trigger.Fire(ctx).Err
		}
	}

	httpServer := server.NewServer(slotStore, server.Config{
		Port:        sb.port,
		Assets:      dashboard.Assets,
		Title:       sb.title,
		Logger:      sb.logger,
		Update:      update,
		UpdateLimit: sb.updateLimit,
		UpdateBurst: sb.updateBurst,
		Notices:     rt.board,
		Metrics:     promhttp.HandlerFor(sb.registry, promhttp.HandlerOpts{}),
	})
	if err := httpServer.Start(ctx); err != nil {
		rt.close()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	rt.poller.Start(ctx)

	<-ctx.Done()
	rt.close()
	sb.logger.Info("statboard stopped")
	return nil
}

// Watch polls the sources and shows them in the terminal until ctx is
// cancelled or the user quits. Pressing "u" fires the manual update.
//
// Watch owns the terminal: log output should go to a file or be discarded
// while it runs.
func (sb *StatBoard) Watch(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	view := tui.New(sb.title, sb.Slots())
	rt := sb.newRuntime(view, view)
	defer rt.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rt.trigger != nil {
		limit := sb.updateLimit
		if limit == 0 {
			limit = rate.Inf
		}
		limiter := rate.NewLimiter(limit, sb.updateBurst)
		view.OnUpdate(func() {
			if !limiter.Allow() {
				sb.logger.Warn("manual update rate limited")
				return
			}
			rt.trigger.Fire(ctx)
		})
	}

	rt.poller.Start(ctx)
	if err := view.Run(ctx); err != nil {
		return fmt.Errorf("terminal dashboard: %w", err)
	}
	return nil
}

// TriggerUpdate fires the manual update once and waits for the reply.
//
// Returns [ErrNoUpdateURL] if no update endpoint is configured, otherwise the
// request's error, if any.
func (sb *StatBoard) TriggerUpdate(ctx context.Context) (UpdateResult, error) {
	if sb.updateURL == "" {
		return UpdateResult{}, ErrNoUpdateURL
	}
	trig, err := sb.newTrigger(nil)
	if err != nil {
		return UpdateResult{}, err
	}
	defer trig.Close()

	result := triggerResultToPublicResult(trig.Fire(ctx))
	return result, result.Error
}

// Sources returns a copy of the configured sources.
func (sb *StatBoard) Sources() []Source {
	cp := make([]Source, len(sb.sources))
	copy(cp, sb.sources)
	return cp
}

// Slots returns every display slot: one per source, in source order, then
// the last-updated slot.
func (sb *StatBoard) Slots() []string {
	slots := make([]string, 0, len(sb.sources)+1)
	for _, src := range sb.sources {
		slots = append(slots, src.slot)
	}
	return append(slots, display.SlotLastUpdated)
}

// Port returns the configured HTTP port for the dashboard server.
func (sb *StatBoard) Port() int {
	return sb.port
}

// PollingInterval returns the configured interval between polling cycles.
func (sb *StatBoard) PollingInterval() time.Duration {
	return sb.pollingInterval
}

// NoticeTTL returns how long error notices stay visible.
func (sb *StatBoard) NoticeTTL() time.Duration {
	return sb.noticeTTL
}

// UpdateURL returns the manual update endpoint, empty if none.
func (sb *StatBoard) UpdateURL() string {
	return sb.updateURL
}

// runtime is one wired set of poller, notice board and trigger driving a
// display surface.
type runtime struct {
	client  *poller.Client
	board   *notice.Board
	poller  *poller.Poller
	trigger *trigger.Trigger
}

func (sb *StatBoard) newRuntime(sink display.Sink, listener notice.Listener) *runtime {
	client := poller.NewClient()

	board := notice.New(
		notice.WithTTL(sb.noticeTTL),
		notice.WithListener(listener),
		notice.WithListener(sb.metrics),
		notice.WithListener(noticeLogger{logger: sb.logger}),
	)

	rt := &runtime{
		client: client,
		board:  board,
		poller: poller.New(poller.Config{
			Sources:    sb.toPollerSources(),
			Interval:   sb.pollingInterval,
			IndexRange: sb.indexRange,
			Rand:       sb.rand,
			Sink:       sink,
			Notices:    board,
			Client:     client,
			OnResult:   sb.dispatchResult,
			Logger:     sb.logger,
			Metrics:    sb.metrics,
		}),
	}

	if sb.updateURL != "" {
		// the URL was validated by WithUpdateURL, so this cannot fail
		rt.trigger, _ = sb.newTrigger(client)
	}
	return rt
}

// close stops polling and pending notice expiries, then clears the board so
// listeners such as the notices_active gauge end at zero.
func (rt *runtime) close() {
	rt.poller.Stop()
	rt.board.Close()
	rt.board.Clear()
	rt.client.Close()
}

func (sb *StatBoard) newTrigger(client *poller.Client) (*trigger.Trigger, error) {
	return trigger.New(sb.updateURL,
		trigger.WithClient(client),
		trigger.WithLogger(sb.logger),
		trigger.WithMetrics(sb.metrics),
		trigger.WithHook(sb.dispatchUpdate),
	)
}

// toPollerSources converts Source slice to poller.SourceInfo slice.
func (sb *StatBoard) toPollerSources() []poller.SourceInfo {
	result := make([]poller.SourceInfo, len(sb.sources))
	for i, src := range sb.sources {
		result[i] = poller.SourceInfo{
			Slot:    src.slot,
			URL:     src.tmpl,
			Method:  src.method,
			Headers: copyMap(src.headers),
			Timeout: src.timeout,
		}
	}
	return result
}

func (sb *StatBoard) dispatchResult(r poller.Result) {
	if len(sb.resultCallbacks) == 0 {
		return
	}
	result := pollerResultToPublicResult(r)

	sb.cbMu.Lock()
	defer sb.cbMu.Unlock()
	for _, cb := range sb.resultCallbacks {
		invokeCallbackSafe(cb, result, sb.logger, "slot", result.Slot)
	}
}

func (sb *StatBoard) dispatchUpdate(r trigger.Result) {
	if len(sb.updateCallbacks) == 0 {
		return
	}
	result := triggerResultToPublicResult(r)

	sb.cbMu.Lock()
	defer sb.cbMu.Unlock()
	for _, cb := range sb.updateCallbacks {
		invokeCallbackSafe(cb, result, sb.logger, "request_id", result.ID)
	}
}

func triggerResultToPublicResult(r trigger.Result) UpdateResult {
	return UpdateResult{
		ID:         r.ID,
		URL:        r.URL,
		Value:      r.Value,
		StatusCode: r.StatusCode,
		Latency:    r.Latency,
		Error:      r.Err,
	}
}

// invokeCallbackSafe calls a user callback with panic recovery.
// Panics are logged with a correlation id but do not propagate.
func invokeCallbackSafe[T any](cb func(T), v T, logger *slog.Logger, attrs ...any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked",
				append([]any{"panic", r, "panic_id", uuid.New().String()}, attrs...)...,
			)
		}
	}()
	cb(v)
}

// noticeLogger logs notice lifecycle at debug level.
type noticeLogger struct {
	logger *slog.Logger
}

func (l noticeLogger) NoticeAdded(n notice.Notice) {
	l.logger.Debug("notice created", "notice_id", n.ID, "message", n.Message)
}

func (l noticeLogger) NoticeRemoved(id string) {
	l.logger.Debug("notice removed", "notice_id", id)
}
