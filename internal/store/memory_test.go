package store

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/notice"
)

var testSlots = []string{display.SlotProcessingStats, display.SlotAnalyzerStats, display.SlotLastUpdated}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(testSlots)
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	snap := store.Snapshot()
	if len(snap.Slots) != len(testSlots) {
		t.Errorf("Snapshot().Slots = %v items, want %v", len(snap.Slots), len(testSlots))
	}
	for _, s := range testSlots {
		if text, ok := snap.Slots[s]; !ok || text != "" {
			t.Errorf("Snapshot().Slots[%q] = %q, %v; want empty, true", s, text, ok)
		}
	}
	if len(snap.Notices) != 0 {
		t.Errorf("Snapshot().Notices = %v items, want 0", len(snap.Notices))
	}
	if snap.NoticesVisible {
		t.Error("Snapshot().NoticesVisible = true, want false")
	}
}

func TestMemoryStore_Render(t *testing.T) {
	store := NewMemoryStore(testSlots)

	if err := store.Render(display.SlotProcessingStats, `{"count":5}`); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := store.Snapshot().Slots[display.SlotProcessingStats]
	if got != `{"count":5}` {
		t.Errorf("Snapshot().Slots[processing-stats] = %v, want %v", got, `{"count":5}`)
	}
}

func TestMemoryStore_RenderOverwrites(t *testing.T) {
	store := NewMemoryStore(testSlots)

	_ = store.Render(display.SlotAnalyzerStats, `{"n":1}`)
	_ = store.Render(display.SlotAnalyzerStats, `{"n":2}`)

	got := store.Snapshot().Slots[display.SlotAnalyzerStats]
	if got != `{"n":2}` {
		t.Errorf("Snapshot().Slots[analyzer-stats] = %v, want %v", got, `{"n":2}`)
	}
}

func TestMemoryStore_RenderUnknownSlot(t *testing.T) {
	store := NewMemoryStore(testSlots)
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	err := store.Render("nope", "x")
	if !errors.Is(err, display.ErrUnknownSlot) {
		t.Fatalf("Render() error = %v, want ErrUnknownSlot", err)
	}

	if _, ok := store.Snapshot().Slots["nope"]; ok {
		t.Error("Render() created an unknown slot")
	}

	select {
	case ev := <-ch:
		t.Errorf("received event %+v for unknown slot", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStore_Notices(t *testing.T) {
	store := NewMemoryStore(testSlots)

	store.NoticeAdded(notice.Notice{ID: "1-1", Message: "first"})
	store.NoticeAdded(notice.Notice{ID: "1-2", Message: "second"})

	snap := store.Snapshot()
	if len(snap.Notices) != 2 {
		t.Fatalf("Snapshot().Notices = %v items, want 2", len(snap.Notices))
	}
	if snap.Notices[0].ID != "1-2" {
		t.Errorf("Snapshot().Notices[0].ID = %v, want 1-2 (newest first)", snap.Notices[0].ID)
	}
	if !snap.NoticesVisible {
		t.Error("Snapshot().NoticesVisible = false, want true")
	}

	store.NoticeRemoved("1-2")
	store.NoticeRemoved("1-2")
	store.NoticeRemoved("unknown")

	snap = store.Snapshot()
	if len(snap.Notices) != 1 || snap.Notices[0].ID != "1-1" {
		t.Errorf("Snapshot().Notices = %+v, want only 1-1", snap.Notices)
	}

	store.NoticeRemoved("1-1")
	snap = store.Snapshot()
	if len(snap.Notices) != 0 {
		t.Errorf("Snapshot().Notices = %v items, want 0", len(snap.Notices))
	}
	// the container stays shown once revealed
	if !snap.NoticesVisible {
		t.Error("Snapshot().NoticesVisible = false after removal, want true")
	}
}

func TestMemoryStore_SnapshotIsCopy(t *testing.T) {
	store := NewMemoryStore(testSlots)
	store.NoticeAdded(notice.Notice{ID: "1-1", Message: "x"})

	snap := store.Snapshot()
	snap.Slots[display.SlotProcessingStats] = "changed"
	snap.Notices[0].Message = "changed"

	again := store.Snapshot()
	if again.Slots[display.SlotProcessingStats] != "" {
		t.Error("Snapshot() shares slot map with store")
	}
	if again.Notices[0].Message != "x" {
		t.Error("Snapshot() shares notice slice with store")
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore(testSlots)

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		_ = store.Render(display.SlotProcessingStats, "{}")
	}()

	select {
	case ev := <-ch:
		if ev.Kind != EventSlot {
			t.Errorf("received Kind = %v, want %v", ev.Kind, EventSlot)
		}
		if ev.Slot != display.SlotProcessingStats {
			t.Errorf("received Slot = %v, want %v", ev.Slot, display.SlotProcessingStats)
		}
		if ev.Text != "{}" {
			t.Errorf("received Text = %v, want {}", ev.Text)
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_SubscribeNoticeEvents(t *testing.T) {
	store := NewMemoryStore(testSlots)
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.NoticeAdded(notice.Notice{ID: "7-1", Message: "boom"})
	store.NoticeRemoved("7-1")

	ev := <-ch
	if ev.Kind != EventNoticeAdded || ev.Notice == nil || ev.Notice.ID != "7-1" {
		t.Errorf("first event = %+v, want notice_added 7-1", ev)
	}
	ev = <-ch
	if ev.Kind != EventNoticeRemoved || ev.NoticeID != "7-1" {
		t.Errorf("second event = %+v, want notice_removed 7-1", ev)
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore(testSlots)

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	// render should fanout to all subscribers
	go func() {
		_ = store.Render(display.SlotLastUpdated, "2024-05-01 12:00:00")
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore(testSlots)

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	// channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel not closed")
	}

	// second unsubscribe is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_UnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore(testSlots)

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	store.Unsubscribe(ch1)

	_ = store.Render(display.SlotProcessingStats, "{}")

	select {
	case <-ch2:
	case <-time.After(1 * time.Second):
		t.Error("remaining subscriber did not receive update")
	}

	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel received update")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore(testSlots)

	// never read from this one
	_ = store.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = store.Render(display.SlotProcessingStats, "{}")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Render() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(testSlots)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = store.Render(display.SlotProcessingStats, "{}")
		}()
		go func() {
			defer wg.Done()
			_ = store.Snapshot()
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			store.Unsubscribe(ch)
		}()
	}
	wg.Wait()
}

// TestMemoryStore_EventOrderMatchesState verifies that with overlapping
// renders into one slot, the last published event carries the stored text.
func TestMemoryStore_EventOrderMatchesState(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := NewMemoryStore(testSlots)
		ch := store.Subscribe()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Render(display.SlotProcessingStats, `{"n":`+strconv.Itoa(i)+`}`)
			}(i)
		}
		wg.Wait()

		var last string
		for len(ch) > 0 {
			ev := <-ch
			if ev.Kind == EventSlot && ev.Slot == display.SlotProcessingStats {
				last = ev.Text
			}
		}
		if want := store.Snapshot().Slots[display.SlotProcessingStats]; last != want {
			t.Fatalf("round %d: last event text = %q, stored text = %q", round, last, want)
		}
		store.Unsubscribe(ch)
	}
}
