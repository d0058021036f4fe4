package statboard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/statboard/internal/poller"
)

// sbConfig holds mutable state during StatBoard construction.
type sbConfig struct {
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
	registry        *prometheus.Registry
}

// Option is a function that configures a [StatBoard] instance during construction.
//
// Options return an error if validation fails.
type Option func(*sbConfig) error

// WithSource adds a single [Source] to the polling list.
//
// Can be called multiple times. At least one source must be configured for
// [New] to succeed, and slots must be unique.
func WithSource(s Source) Option {
	return func(cfg *sbConfig) error {
		cfg.sources = append(cfg.sources, s)
		return nil
	}
}

// WithSources adds multiple [Source] values to the polling list, typically
// the result of [PathTopology] or [PortTopology].
//
// Example:
//
//	sources, err := statboard.PathTopology("http://vm.example.com")
//	if err != nil {
//	    return err
//	}
//	sb, err := statboard.New(statboard.WithSources(sources...))
func WithSources(sources ...Source) Option {
	return func(cfg *sbConfig) error {
		cfg.sources = append(cfg.sources, sources...)
		return nil
	}
}

// WithPollingInterval sets the time between poll cycles. Defaults to 4 seconds.
//
// A cycle starts on schedule even if the previous cycle's requests are still
// outstanding.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *sbConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithNoticeTTL sets how long an error notice stays visible. Defaults to
// 7 seconds.
//
// Returns an error if the duration is zero or negative.
func WithNoticeTTL(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("notice TTL must be positive")
		}
		cfg.noticeTTL = d
		return nil
	}
}

// WithIndexRange sets the exclusive upper bound of the random sample index
// substituted for {{.Index}} in source URLs. Defaults to 10.
//
// Returns an error if n is zero or negative.
func WithIndexRange(n int) Option {
	return func(cfg *sbConfig) error {
		if n <= 0 {
			return errors.New("index range must be positive")
		}
		cfg.indexRange = n
		return nil
	}
}

// WithRand replaces the random source used for sample indices, mainly for
// deterministic tests. IntN is only ever called from one goroutine at a time.
//
// Returns an error if r is nil.
func WithRand(r poller.Rand) Option {
	return func(cfg *sbConfig) error {
		if r == nil {
			return errors.New("rand cannot be nil")
		}
		cfg.rand = r
		return nil
	}
}

// WithUpdateURL sets the manual update endpoint. Without it the dashboard's
// update button does nothing and [StatBoard.TriggerUpdate] fails.
//
// Returns an error if the URL has no http or https scheme.
func WithUpdateURL(rawURL string) Option {
	return func(cfg *sbConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid update URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("update URL must have a scheme (http:// or https://)")
		}
		cfg.updateURL = rawURL
		return nil
	}
}

// WithUpdateRateLimit limits how often the dashboard may fire the manual
// update. Defaults to one per second with a burst of 3. A zero limit
// disables rate limiting.
//
// Returns an error if limit is negative or burst is below 1.
func WithUpdateRateLimit(limit rate.Limit, burst int) Option {
	return func(cfg *sbConfig) error {
		if limit < 0 {
			return errors.New("update rate limit cannot be negative")
		}
		if burst < 1 {
			return errors.New("update burst must be at least 1")
		}
		cfg.updateLimit = limit
		cfg.updateBurst = burst
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *sbConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResultCallback registers a function called after every fetch has been
// rendered or turned into a notice.
//
// Multiple callbacks may be registered; they execute in registration order.
// Callbacks are invoked one at a time and must be non-blocking. Panics within
// callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(PollResult)) Option {
	return func(cfg *sbConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

// WithUpdateCallback registers a function called after every manual update
// attempt, with the decoded reply on success. The same rules as
// [WithResultCallback] apply.
//
// Nil callbacks are silently ignored.
func WithUpdateCallback(cb func(UpdateResult)) Option {
	return func(cfg *sbConfig) error {
		if cb == nil {
			return nil
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}

// WithMetricsRegistry registers statboard's collectors with reg and serves
// reg at /metrics. Without it a private registry is used.
//
// Returns an error if reg is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *sbConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab, header
// and terminal status line. Defaults to "Statboard".
func WithTitle(title string) Option {
	return func(cfg *sbConfig) error {
		cfg.title = title
		return nil
	}
}
