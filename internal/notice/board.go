// Package notice manages the transient error notices shown when a fetch fails.
//
// Notices are kept newest-first. Each one removes itself after a fixed
// time-to-live unless something removed it earlier; removal is keyed by id and
// idempotent, so whichever path removes a notice first wins and the other is a
// no-op.
package notice

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long a notice stays on screen.
const DefaultTTL = 7 * time.Second

const headingLayout = "2006-01-02 15:04:05"

// Notice is a single error message shown to the user.
type Notice struct {
	// ID is unique per board: creation time in unix milliseconds plus a
	// monotonic sequence number, e.g. "1712345678901-3".
	ID string `json:"id"`

	// Heading is the human-readable banner line.
	Heading string `json:"heading"`

	// Message is the failure text.
	Message string `json:"message"`

	// CreatedAt is when the notice was created.
	CreatedAt time.Time `json:"created_at"`
}

// Listener mirrors the notice list into a display surface.
//
// Calls are serialized: a listener never sees NoticeRemoved for an id before
// the matching NoticeAdded. Listeners must not call back into the [Board].
type Listener interface {
	NoticeAdded(n Notice)
	NoticeRemoved(id string)
}

// AfterFunc schedules f to run once after d and returns a function that
// cancels it. f must run on another goroutine; [time.AfterFunc] qualifies.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Board holds the live notices.
//
// All methods are safe for concurrent use.
type Board struct {
	// notifyMu serializes mutations together with their listener calls so
	// listeners observe adds and removes in the same order as the board.
	notifyMu sync.Mutex

	mu      sync.Mutex
	notices []Notice // newest first
	timers  map[string]func() bool
	visible bool
	seq     uint64
	closed  bool

	ttl       time.Duration
	now       func() time.Time
	afterFunc AfterFunc
	listeners []Listener
}

// Option configures a [Board].
type Option func(*Board)

// WithTTL sets how long each notice lives. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(b *Board) {
		if d > 0 {
			b.ttl = d
		}
	}
}

// WithClock sets the time source used for ids, headings and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// WithAfterFunc replaces the timer used to schedule expiry.
func WithAfterFunc(af AfterFunc) Option {
	return func(b *Board) {
		if af != nil {
			b.afterFunc = af
		}
	}
}

// WithListener registers a listener. May be given several times.
func WithListener(l Listener) Option {
	return func(b *Board) {
		if l != nil {
			b.listeners = append(b.listeners, l)
		}
	}
}

// New creates an empty, hidden [Board].
func New(opts ...Option) *Board {
	b := &Board{
		timers:    make(map[string]func() bool),
		ttl:       DefaultTTL,
		now:       time.Now,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TTL returns the configured time-to-live.
func (b *Board) TTL() time.Duration {
	return b.ttl
}

// Create prepends a new notice for message, makes the board visible and
// schedules the notice's removal after the TTL.
func (b *Board) Create(message string) Notice {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	now := b.now()

	b.mu.Lock()
	b.seq++
	n := Notice{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), b.seq),
		Heading:   fmt.Sprintf("Something happened at %s!", now.Format(headingLayout)),
		Message:   message,
		CreatedAt: now,
	}
	b.notices = append([]Notice{n}, b.notices...)
	b.visible = true
	if !b.closed {
		id := n.ID
		b.timers[id] = b.afterFunc(b.ttl, func() { b.Remove(id) })
	}
	b.mu.Unlock()

	for _, l := range b.listeners {
		l.NoticeAdded(n)
	}
	return n
}

// Remove deletes the notice with the given id and reports whether it was
// present. Removing an unknown or already removed id is a no-op.
func (b *Board) Remove(id string) bool {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	idx := -1
	for i, n := range b.notices {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}
	b.notices = append(b.notices[:idx:idx], b.notices[idx+1:]...)
	if stop, ok := b.timers[id]; ok {
		stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	for _, l := range b.listeners {
		l.NoticeRemoved(id)
	}
	return true
}

// Snapshot returns a copy of the live notices, newest first.
func (b *Board) Snapshot() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

// Len returns the number of live notices.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notices)
}

// Visible reports whether the notices container has been shown. It turns on
// with the first notice and stays on.
func (b *Board) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Clear removes every live notice, oldest first, telling listeners about
// each one. The board stays visible once it has been shown.
func (b *Board) Clear() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	removed := b.notices
	b.notices = nil
	for id, stop := range b.timers {
		stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	for i := len(removed) - 1; i >= 0; i-- {
		for _, l := range b.listeners {
			l.NoticeRemoved(removed[i].ID)
		}
	}
}

// Close cancels every pending expiry. Notices already on the board stay
// until removed explicitly, and notices created afterwards never expire.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, stop := range b.timers {
		stop()
		delete(b.timers, id)
	}
}
