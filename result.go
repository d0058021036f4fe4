package statboard

import (
	"time"

	"github.com/jpalmerr/statboard/internal/poller"
)

// Outcome classifies a finished fetch.
type Outcome string

const (
	// OutcomeRendered means the response parsed as JSON and is now shown.
	OutcomeRendered Outcome = poller.OutcomeRendered

	// OutcomeFetchError means no usable response arrived (network failure,
	// cancellation or timeout). A notice was raised.
	OutcomeFetchError Outcome = poller.OutcomeFetchError

	// OutcomeParseError means the response body was not JSON. A notice was
	// raised.
	OutcomeParseError Outcome = poller.OutcomeParseError
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// PollResult holds the outcome of fetching one source in one cycle.
type PollResult struct {
	// Slot is the source's display slot.
	Slot string

	// URL is the concrete URL fetched, with the sample index substituted.
	URL string

	// Outcome classifies the fetch.
	Outcome Outcome

	// Text is what was rendered into the slot. Empty unless Outcome is
	// [OutcomeRendered].
	Text string

	// StatusCode is the HTTP status code, zero if no response arrived.
	// A non-2xx response with a JSON body is still rendered.
	StatusCode int

	// Latency is the time taken by the request.
	Latency time.Duration

	// CheckedAt is when the fetch completed.
	CheckedAt time.Time

	// Cycle is the 1-based poll cycle the fetch belonged to.
	Cycle uint64

	// Error is nil when rendered. Otherwise it wraps poller.ErrFetch or
	// poller.ErrParse and its text is the notice message.
	Error error
}

// UpdateResult holds the outcome of one manual update request.
type UpdateResult struct {
	// ID correlates this request with its log lines.
	ID string

	// URL is the update endpoint.
	URL string

	// Value is the decoded JSON reply, nil on failure.
	Value any

	// StatusCode is the HTTP status code, zero if no response arrived.
	StatusCode int

	// Latency is the time taken by the request.
	Latency time.Duration

	// Error is nil on success.
	Error error
}

func pollerResultToPublicResult(r poller.Result) PollResult {
	return PollResult{
		Slot:       r.Slot,
		URL:        r.URL,
		Outcome:    Outcome(poller.OutcomeOf(r.Err)),
		Text:       r.Text,
		StatusCode: r.StatusCode,
		Latency:    r.Latency,
		CheckedAt:  r.CheckedAt,
		Cycle:      r.Cycle,
		Error:      r.Err,
	}
}
