package store

import (
	"time"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/notice"
)

// EventKind identifies what an [Event] carries.
type EventKind string

const (
	// EventSnapshot carries the full state; sent first to each SSE client.
	EventSnapshot EventKind = "snapshot"

	// EventSlot carries a new slot text.
	EventSlot EventKind = "slot"

	// EventNoticeAdded carries a new notice.
	EventNoticeAdded EventKind = "notice_added"

	// EventNoticeRemoved carries the id of a removed notice.
	EventNoticeRemoved EventKind = "notice_removed"
)

// Event is a single display change, serialized as-is to SSE clients.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Slot     string         `json:"slot,omitempty"`
	Text     string         `json:"text,omitempty"`
	Notice   *notice.Notice `json:"notice,omitempty"`
	NoticeID string         `json:"notice_id,omitempty"`
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	At       time.Time      `json:"at"`
}

// Snapshot is the whole display state.
type Snapshot struct {
	// Slots maps slot name to its current text. Never-rendered slots are "".
	Slots map[string]string `json:"slots"`

	// Notices are the live notices, newest first.
	Notices []notice.Notice `json:"notices"`

	// NoticesVisible is true once any notice has been shown.
	NoticesVisible bool `json:"notices_visible"`
}

// Store is the display state behind the web dashboard.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	display.Sink
	notice.Listener

	// Snapshot returns a copy of the current state.
	Snapshot() Snapshot

	// Subscribe returns a channel that receives every change.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
