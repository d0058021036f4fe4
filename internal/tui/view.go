// Package tui renders the dashboard in a terminal.
//
// [View] is a second display surface next to the web store: one text pane
// per slot, a pane listing live notices and a status line. It implements
// display.Sink and notice.Listener, so the poller and notice board drive it
// exactly as they drive the browser.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/notice"
)

// ErrNoApplication is returned by Run on a View built without a terminal.
var ErrNoApplication = errors.New("tui: view has no application")

const slotPaneHeight = 5

// View is a terminal dashboard.
type View struct {
	app    *tview.Application
	queue  func(func())
	layout *tview.Flex

	slots   map[string]*tview.TextView
	notices *tview.TextView
	status  *tview.TextView
	title   string

	mu         sync.Mutex // guards direct widget updates before Run
	textMu     sync.Mutex
	texts      map[string]string // latest text per slot
	noticeMu   sync.Mutex
	noticeList []notice.Notice // newest first

	renders  atomic.Uint64
	received atomic.Uint64

	running  atomic.Bool
	closed   atomic.Bool
	stopped  chan struct{} // closed when Run returns
	stopOnce sync.Once
	onUpdate atomic.Pointer[func()]
}

// New creates a View over the given slots. Call [View.Run] to take over the
// terminal.
func New(title string, slots []string) *View {
	app := tview.NewApplication()
	v := newView(title, slots, nil)
	v.app = app
	v.queue = func(f func()) {
		if !v.running.Load() {
			v.mu.Lock()
			defer v.mu.Unlock()
			f()
			return
		}
		// QueueUpdateDraw blocks until the event loop runs f, which never
		// happens once the application has stopped.
		done := make(chan struct{})
		go func() {
			app.QueueUpdateDraw(f)
			close(done)
		}()
		select {
		case <-done:
		case <-v.stopped:
		}
	}
	app.SetRoot(v.layout, true).EnableMouse(false).SetInputCapture(v.handleKey)
	return v
}

// newView builds the widgets. queue applies a widget update.
func newView(title string, slots []string, queue func(func())) *View {
	v := &View{
		queue:   queue,
		stopped: make(chan struct{}),
		slots:   make(map[string]*tview.TextView, len(slots)),
		texts:   make(map[string]string, len(slots)),
		title:   title,
	}

	v.status = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	v.status.SetTextColor(tcell.ColorYellow)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.status, 1, 0, false)

	for _, slot := range slots {
		// slot text is raw JSON, so color tags stay off
		tv := tview.NewTextView().SetWrap(true)
		tv.SetBorder(true).SetTitle(" " + slot + " ").SetTitleAlign(tview.AlignLeft)
		v.slots[slot] = tv
		height := slotPaneHeight
		if slot == display.SlotLastUpdated {
			height = 3
		}
		layout.AddItem(tv, height, 0, false)
	}

	v.notices = tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	v.notices.SetBorder(true).SetTitleAlign(tview.AlignLeft)
	layout.AddItem(v.notices, 0, 1, false)

	v.layout = layout
	v.drawStatus()
	return v
}

// OnUpdate sets the action bound to the "u" key.
func (v *View) OnUpdate(fn func()) {
	v.onUpdate.Store(&fn)
}

// Render implements display.Sink.
//
// Queued updates may run in any order, so each one applies the latest text
// for its slot rather than the text it was queued with.
func (v *View) Render(slot, text string) error {
	tv, ok := v.slots[slot]
	if !ok {
		return fmt.Errorf("%w: %q", display.ErrUnknownSlot, slot)
	}
	v.renders.Add(1)
	v.received.Add(uint64(len(text)))

	v.textMu.Lock()
	v.texts[slot] = text
	v.textMu.Unlock()

	v.do(func() {
		v.textMu.Lock()
		latest := v.texts[slot]
		v.textMu.Unlock()
		tv.SetText(latest)
		v.drawStatus()
	})
	return nil
}

// NoticeAdded implements notice.Listener.
func (v *View) NoticeAdded(n notice.Notice) {
	v.noticeMu.Lock()
	v.noticeList = append([]notice.Notice{n}, v.noticeList...)
	v.noticeMu.Unlock()

	v.do(func() {
		v.notices.SetTitle(" Notices ")
		v.drawNotices()
	})
}

// NoticeRemoved implements notice.Listener.
func (v *View) NoticeRemoved(id string) {
	v.noticeMu.Lock()
	for i, n := range v.noticeList {
		if n.ID == id {
			v.noticeList = append(v.noticeList[:i:i], v.noticeList[i+1:]...)
			break
		}
	}
	v.noticeMu.Unlock()

	v.do(v.drawNotices)
}

// Run takes over the terminal until ctx is cancelled or the user quits with
// "q" or Ctrl-C. Afterwards the View ignores further updates.
func (v *View) Run(ctx context.Context) error {
	if v.app == nil {
		return ErrNoApplication
	}
	stop := context.AfterFunc(ctx, v.app.Stop)
	defer stop()

	v.running.Store(true)
	err := v.app.Run()
	v.closed.Store(true)
	v.running.Store(false)
	v.stopOnce.Do(func() { close(v.stopped) })
	return err
}

func (v *View) do(f func()) {
	if v.closed.Load() {
		return
	}
	v.queue(f)
}

func (v *View) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if ev.Key() != tcell.KeyRune {
		return ev
	}
	switch ev.Rune() {
	case 'u':
		if fn := v.onUpdate.Load(); fn != nil && *fn != nil {
			go (*fn)()
		}
		return nil
	case 'q':
		if v.app != nil {
			v.app.Stop()
		}
		return nil
	}
	return ev
}

// drawNotices shows the current notice list, whatever update queued it.
func (v *View) drawNotices() {
	v.noticeMu.Lock()
	var b strings.Builder
	for _, n := range v.noticeList {
		fmt.Fprintf(&b, "[red::b]%s[-::-]\n%s\n", tview.Escape(n.Heading), tview.Escape(n.Message))
	}
	v.noticeMu.Unlock()

	v.notices.SetText(b.String())
	v.drawStatus()
}

func (v *View) drawStatus() {
	v.noticeMu.Lock()
	active := len(v.noticeList)
	v.noticeMu.Unlock()

	title := v.title
	if title == "" {
		title = "statboard"
	}
	v.status.SetText(fmt.Sprintf("[::b]%s[::-]  renders: %s  received: %s  notices: %d  [gray](u) update  (q) quit",
		tview.Escape(title),
		humanize.Comma(int64(v.renders.Load())),
		humanize.Bytes(v.received.Load()),
		active,
	))
}
