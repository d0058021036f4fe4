package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/notice"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// The set of slots is fixed at construction. Rendering into any other slot
// fails with [display.ErrUnknownSlot] and publishes nothing.
//
// Events are published while mu is held, so subscribers see changes in the
// same order as the state. Lock order is mu, then subMu.
type MemoryStore struct {
	mu      sync.RWMutex
	slots   map[string]string
	notices []notice.Notice // newest first
	visible bool

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex

	now func() time.Time
}

// NewMemoryStore creates a [MemoryStore] owning the given slots.
func NewMemoryStore(slots []string) *MemoryStore {
	m := &MemoryStore{
		slots:       make(map[string]string, len(slots)),
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
	for _, s := range slots {
		m.slots[s] = ""
	}
	return m
}

// Render replaces the text of slot and notifies subscribers.
func (m *MemoryStore) Render(slot, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[slot]; !ok {
		return fmt.Errorf("%w: %q", display.ErrUnknownSlot, slot)
	}
	m.slots[slot] = text

	m.notifySubscribers(Event{Kind: EventSlot, Slot: slot, Text: text, At: m.now()})
	return nil
}

// NoticeAdded prepends n and notifies subscribers.
func (m *MemoryStore) NoticeAdded(n notice.Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append([]notice.Notice{n}, m.notices...)
	m.visible = true

	m.notifySubscribers(Event{Kind: EventNoticeAdded, Notice: &n, At: m.now()})
}

// NoticeRemoved drops the notice with id and notifies subscribers.
// Unknown ids are ignored.
func (m *MemoryStore) NoticeRemoved(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, n := range m.notices {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	m.notices = append(m.notices[:idx:idx], m.notices[idx+1:]...)

	m.notifySubscribers(Event{Kind: EventNoticeRemoved, NoticeID: id, At: m.now()})
}

// Snapshot returns a copy of all slots and notices.
func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slots := make(map[string]string, len(m.slots))
	for k, v := range m.slots {
		slots[k] = v
	}
	notices := make([]notice.Notice, len(m.notices))
	copy(notices, m.notices)

	return Snapshot{Slots: slots, Notices: notices, NoticesVisible: m.visible}
}

// Subscribe creates a new subscription with a buffer of 100 events. If the
// buffer fills, further events are dropped for this subscriber.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends ev to every subscriber without blocking. Callers
// hold m.mu.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}
