package statboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/store"
)

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

// snapshot mirrors the JSON served at /api/snapshot.
type snapshot struct {
	Slots   map[string]string `json:"slots"`
	Notices []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"notices"`
	NoticesVisible bool `json:"notices_visible"`
}

func getSnapshot(port int) (snapshot, error) {
	var snap snapshot
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/snapshot", port))
	if err != nil {
		return snap, err
	}
	defer func() { _ = resp.Body.Close() }()
	err = json.NewDecoder(resp.Body).Decode(&snap)
	return snap, err
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startBoard(t *testing.T, sb *StatBoard) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sb.Start(ctx) }()

	waitFor(t, "dashboard", func() bool {
		_, err := getSnapshot(sb.Port())
		return err == nil
	})

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Start() did not return after context cancellation")
		}
	}
}

func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	sb, err := New(
		WithSource(mustSource(t, "a", ts.URL)),
		WithPort(freePort(t)),
		WithPollingInterval(100*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sb.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	sb, err := New(
		WithSource(mustSource(t, "a", "http://127.0.0.1:1/a")),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- sb.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return for cancelled context")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	sb, err := New(
		WithSource(mustSource(t, "a", "http://127.0.0.1:1/a")),
		WithPort(ln.Addr().(*net.TCPAddr).Port),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = sb.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want bind failure", err)
	}
}

func TestStart_RendersSlotsAndNotices(t *testing.T) {
	var failing atomic.Bool
	var indices sync.Map
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stats":
			if failing.Load() {
				_, _ = w.Write([]byte("<html>oops</html>"))
				return
			}
			_, _ = w.Write([]byte(`{"count": 5}`))
		case "/chats":
			indices.Store(r.URL.Query().Get("index"), true)
			_, _ = w.Write([]byte(`[{"user":"a"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	sb, err := New(
		WithSources(
			mustSource(t, display.SlotProcessingStats, ts.URL+"/stats"),
			mustSource(t, display.SlotEventChat, ts.URL+"/chats?index={{.Index}}"),
		),
		WithPort(freePort(t)),
		WithPollingInterval(50*time.Millisecond),
		WithNoticeTTL(time.Hour),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, sb)
	defer stop()

	waitFor(t, "rendered slots", func() bool {
		snap, err := getSnapshot(sb.Port())
		return err == nil &&
			snap.Slots[display.SlotProcessingStats] == `{"count":5}` &&
			snap.Slots[display.SlotEventChat] == `[{"user":"a"}]` &&
			snap.Slots[display.SlotLastUpdated] != ""
	})

	failing.Store(true)

	waitFor(t, "parse failure notice", func() bool {
		snap, err := getSnapshot(sb.Port())
		return err == nil && len(snap.Notices) > 0 && snap.NoticesVisible
	})

	snap, err := getSnapshot(sb.Port())
	if err != nil {
		t.Fatalf("getSnapshot() error = %v", err)
	}
	if snap.Slots[display.SlotProcessingStats] != `{"count":5}` {
		t.Errorf("failed fetch changed slot to %q", snap.Slots[display.SlotProcessingStats])
	}

	found := false
	indices.Range(func(k, _ any) bool {
		found = true
		idx := k.(string)
		if len(idx) != 1 || idx[0] < '0' || idx[0] > '9' {
			t.Errorf("index = %q, want 0-9", idx)
		}
		return true
	})
	if !found {
		t.Error("no index query seen")
	}
}

func TestStart_NoticeExpiresAndDismisses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()

	sb, err := New(
		WithSource(mustSource(t, "a", ts.URL)),
		WithPort(freePort(t)),
		WithPollingInterval(time.Hour),
		WithNoticeTTL(200*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, sb)
	defer stop()

	waitFor(t, "notice", func() bool {
		snap, err := getSnapshot(sb.Port())
		return err == nil && len(snap.Notices) == 1
	})
	waitFor(t, "notice expiry", func() bool {
		snap, err := getSnapshot(sb.Port())
		return err == nil && len(snap.Notices) == 0 && snap.NoticesVisible
	})
}

func TestResultCallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "warming up"}`))
	}))
	defer ts.Close()

	var mu sync.Mutex
	var got *PollResult
	done := make(chan struct{})

	sb, err := New(
		WithSource(mustSource(t, "a", ts.URL)),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
		WithResultCallback(func(PollResult) { panic("boom") }),
		WithResultCallback(func(r PollResult) {
			mu.Lock()
			defer mu.Unlock()
			if got == nil {
				got = &r
				close(done)
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, sb)
	defer stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Slot != "a" {
		t.Errorf("Slot = %q, want a", got.Slot)
	}
	if got.Outcome != OutcomeRendered {
		t.Errorf("Outcome = %v, want rendered (JSON body on non-2xx)", got.Outcome)
	}
	if got.Text != `{"error":"warming up"}` {
		t.Errorf("Text = %q", got.Text)
	}
	if got.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", got.StatusCode)
	}
	if got.Cycle != 1 {
		t.Errorf("Cycle = %d, want 1", got.Cycle)
	}
	if got.CheckedAt.IsZero() {
		t.Error("CheckedAt should not be zero")
	}
}

func TestManualUpdate_ViaDashboard(t *testing.T) {
	var updates atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/update" {
			if r.Method != http.MethodPost {
				t.Errorf("update method = %s, want POST", r.Method)
			}
			updates.Add(1)
			_, _ = w.Write([]byte(`{"updated": true}`))
			return
		}
		_, _ = w.Write([]byte(`{"n": 1}`))
	}))
	defer ts.Close()

	results := make(chan UpdateResult, 1)
	sb, err := New(
		WithSource(mustSource(t, "a", ts.URL+"/stats")),
		WithPort(freePort(t)),
		WithPollingInterval(time.Hour),
		WithUpdateURL(ts.URL+"/update"),
		WithUpdateCallback(func(r UpdateResult) { results <- r }),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, sb)
	defer stop()

	waitFor(t, "first render", func() bool {
		snap, err := getSnapshot(sb.Port())
		return err == nil && snap.Slots["a"] != ""
	})
	before, _ := getSnapshot(sb.Port())

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/api/update", sb.Port()), "", nil)
	if err != nil {
		t.Fatalf("POST /api/update error = %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("POST /api/update status = %d, want 204", resp.StatusCode)
	}

	select {
	case r := <-results:
		v, ok := r.Value.(map[string]any)
		if !ok || v["updated"] != true {
			t.Errorf("UpdateResult.Value = %#v", r.Value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("update callback not called")
	}

	after, _ := getSnapshot(sb.Port())
	for slot, text := range before.Slots {
		if after.Slots[slot] != text {
			t.Errorf("manual update changed slot %s: %q -> %q", slot, text, after.Slots[slot])
		}
	}
	if updates.Load() != 1 {
		t.Errorf("update requests = %d, want 1", updates.Load())
	}
}

func TestTriggerUpdate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"updated": true}`))
	}))
	defer ts.Close()

	src := mustSource(t, "a", ts.URL)

	sb, _ := New(WithSource(src), WithLogger(testLogger()))
	if _, err := sb.TriggerUpdate(context.Background()); !errors.Is(err, ErrNoUpdateURL) {
		t.Errorf("TriggerUpdate() error = %v, want ErrNoUpdateURL", err)
	}

	sb, _ = New(WithSource(src), WithLogger(testLogger()), WithUpdateURL(ts.URL))
	result, err := sb.TriggerUpdate(context.Background())
	if err != nil {
		t.Fatalf("TriggerUpdate() error = %v", err)
	}
	if result.ID == "" || result.StatusCode != http.StatusOK {
		t.Errorf("TriggerUpdate() = %+v", result)
	}
}

func TestStart_Metrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	sb, err := New(
		WithSource(mustSource(t, "a", ts.URL)),
		WithPort(freePort(t)),
		WithPollingInterval(50*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, sb)
	defer stop()

	waitFor(t, "metrics", func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", sb.Port()))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `statboard_polls_total{outcome="rendered",slot="a"}`)
	})
}

func TestRuntimeClose_ResetsActiveNotices(t *testing.T) {
	sb, err := New(
		WithSource(mustSource(t, "a", "http://127.0.0.1:1/a")),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	slotStore := store.NewMemoryStore(sb.Slots())
	rt := sb.newRuntime(slotStore, slotStore)

	select {
	case <-rt.poller.PollOnce(context.Background()):
	case <-time.After(5 * time.Second):
		t.Fatal("poll cycle did not complete")
	}
	if got := testutil.ToFloat64(sb.metrics.NoticesActive); got != 1 {
		t.Fatalf("notices_active before close = %v, want 1", got)
	}

	rt.close()

	if got := testutil.ToFloat64(sb.metrics.NoticesActive); got != 0 {
		t.Errorf("notices_active after close = %v, want 0", got)
	}
	if n := len(slotStore.Snapshot().Notices); n != 0 {
		t.Errorf("store notices after close = %d, want 0", n)
	}
}

func TestInvokeCallbackSafe_RecoversPanic(t *testing.T) {
	called := false
	invokeCallbackSafe(func(int) { panic("boom") }, 1, testLogger())
	invokeCallbackSafe(func(int) { called = true }, 1, testLogger())
	if !called {
		t.Error("callback after panic not invoked")
	}
}
