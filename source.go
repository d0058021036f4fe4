package statboard

import (
	"errors"
	"fmt"
	"net/url"
	"text/template"
	"time"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/poller"
)

// Source is one JSON endpoint polled into one display slot.
//
// Source is immutable after creation via [NewSource]. All fields are private
// with getter methods that return copies of mutable data (maps).
//
// The URL may contain the template action {{.Index}}, which is replaced on
// every cycle with a random sample index (see [WithIndexRange]).
type Source struct {
	slot    string
	url     string
	tmpl    *template.Template
	method  string
	headers map[string]string
	timeout time.Duration
}

// Slot returns the display slot this source renders into.
func (s Source) Slot() string {
	return s.slot
}

// URL returns the source's URL template as given to [NewSource].
func (s Source) URL() string {
	return s.url
}

// Method returns the HTTP method. Empty means GET.
func (s Source) Method() string {
	return s.method
}

// Headers returns a copy of the custom HTTP headers sent with every request.
// Returns nil if no custom headers are set.
func (s Source) Headers() map[string]string {
	return copyMap(s.headers)
}

// Timeout returns the per-request timeout. Zero means requests are never
// cut short; a hung request simply never renders that cycle.
func (s Source) Timeout() time.Duration {
	return s.timeout
}

// NewSource creates a [Source] rendering rawURL into slot.
//
// The slot must be non-empty and must not be the reserved
// "last-updated-value" slot. rawURL must be a valid template and, rendered
// with index 0, a URL with an http or https scheme.
//
// Example:
//
//	src, err := statboard.NewSource("event-chat",
//	    "http://localhost/analyzer/stream/chats?index={{.Index}}",
//	    statboard.WithTimeout(3*time.Second),
//	)
func NewSource(slot, rawURL string, opts ...SourceOption) (Source, error) {
	if slot == "" {
		return Source{}, errors.New("source slot cannot be empty")
	}
	if slot == display.SlotLastUpdated {
		return Source{}, fmt.Errorf("slot %q is reserved for the last updated time", slot)
	}

	tmpl, err := poller.ParseURLTemplate(rawURL)
	if err != nil {
		return Source{}, err
	}
	sample, err := poller.RenderURL(tmpl, poller.URLParams{})
	if err != nil {
		return Source{}, err
	}
	parsedURL, err := url.Parse(sample)
	if err != nil {
		return Source{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Source{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &sourceConfig{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Source{}, err
		}
	}

	return Source{
		slot:    slot,
		url:     rawURL,
		tmpl:    tmpl,
		method:  cfg.method,
		headers: cfg.headers,
		timeout: cfg.timeout,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
