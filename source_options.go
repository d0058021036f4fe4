package statboard

import (
	"errors"
	"net/http"
	"time"
)

// sourceConfig holds mutable state during source construction.
type sourceConfig struct {
	headers map[string]string
	timeout time.Duration
	method  string
}

// SourceOption is a function that configures a [Source] during construction.
//
// Built-in options: [WithHeaders], [WithTimeout], [WithMethod].
type SourceOption func(*sourceConfig) error

// WithHeaders adds custom HTTP headers to every request for this source.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	src, err := statboard.NewSource("processing-stats", url,
//	    statboard.WithHeaders("Authorization", "Bearer token123"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil && len(keyValues) > 0 {
			cfg.headers = make(map[string]string, len(keyValues)/2)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout bounds each request for this source. A request that runs out
// of time fails like any other network error and raises a notice.
//
// Without this option requests have no timeout.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the HTTP method. GET is the default; POST is accepted for
// endpoints that only answer POST. Requests never carry a body.
//
// Returns an error if the method is not GET or POST.
func WithMethod(method string) SourceOption {
	return func(cfg *sourceConfig) error {
		switch method {
		case http.MethodGet, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET or POST")
		}
	}
}
