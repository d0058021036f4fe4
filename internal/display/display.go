// Package display defines the named display slots statboard renders into.
//
// A display surface (the web dashboard store, the terminal UI, a test
// recorder) implements [Sink]. The poller never talks to a UI toolkit
// directly; it only calls Render with a slot name and the exact text that
// slot should show.
package display

import "errors"

// Default slot names, matching the element ids of the original dashboard page.
const (
	SlotProcessingStats = "processing-stats"
	SlotAnalyzerStats   = "analyzer-stats"
	SlotEventChat       = "event-chat"
	SlotEventDonation   = "event-donation"
	SlotCheck           = "check"
	SlotLastUpdated     = "last-updated-value"
)

// ErrUnknownSlot is returned by a [Sink] asked to render a slot it does not own.
var ErrUnknownSlot = errors.New("unknown display slot")

// Sink is a named display surface.
//
// Render replaces the full content of slot with text. Implementations must be
// safe for concurrent use: every source renders from its own goroutine.
type Sink interface {
	Render(slot, text string) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(slot, text string) error

// Render calls f(slot, text).
func (f SinkFunc) Render(slot, text string) error {
	return f(slot, text)
}

type multiSink []Sink

// Multi returns a [Sink] that renders into every given sink, in order.
// Nil sinks are skipped. Errors from individual sinks are joined; a failing
// sink does not stop the others from rendering.
func Multi(sinks ...Sink) Sink {
	ms := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			ms = append(ms, s)
		}
	}
	return ms
}

func (ms multiSink) Render(slot, text string) error {
	var errs []error
	for _, s := range ms {
		if err := s.Render(slot, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
