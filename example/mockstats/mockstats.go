// Package mockstats is a fake stream processing backend for trying Statboard
// locally. It serves every endpoint of the path topology from one handler.
//
// Each stats request admits a few new chat and donation events, so the
// dashboard visibly changes between cycles. A configurable share of requests
// fails with a non-JSON 503 to exercise the notices.
package mockstats

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// maxEvents bounds the retained events per kind, newest last.
	maxEvents = 50

	timeLayout = "2006-01-02T15:04:05.000000Z"
)

type chat struct {
	EventID       string `json:"event_id"`
	UserID        string `json:"user_id"`
	Message       string `json:"message"`
	ReactionCount int    `json:"reaction_count"`
	Timestamp     string `json:"timestamp"`
}

type donation struct {
	EventID   string  `json:"event_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Timestamp string  `json:"timestamp"`
}

// Backend holds the simulated event history.
type Backend struct {
	mu        sync.Mutex
	chats     []chat
	donations []donation
	seq       int

	numChats       int
	totalReactions int
	numDonations   int
	totalDonations float64

	checks map[string]any

	failureRate float64
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a [Backend].
type Option func(*Backend)

// WithFailureRate makes that share of stats and stream requests fail with a
// 503 HTML page. Values outside [0, 1] are clamped.
func WithFailureRate(p float64) Option {
	return func(b *Backend) {
		b.failureRate = min(max(p, 0), 1)
	}
}

// WithLogger sets the logger for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a backend with no events and no consistency check yet.
func New(opts ...Option) *Backend {
	b := &Backend{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the routes of the path topology.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/processing/stats", b.handleProcessingStats)
	r.Get("/analyzer/stats", b.handleAnalyzerStats)
	r.Get("/analyzer/stream/chats", b.handleChat)
	r.Get("/analyzer/stream/donations", b.handleDonation)
	r.Get("/consistency_check/checks", b.handleChecks)
	r.Post("/consistency_check/update", b.handleUpdate)
	return r
}

// ListenAndServe serves [Backend.Handler] on addr.
func (b *Backend) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

// admit appends a few random events. Callers hold b.mu.
func (b *Backend) admit() {
	stamp := b.now().UTC().Format(timeLayout)
	for range rand.IntN(4) {
		b.seq++
		c := chat{
			EventID:       "chat-" + strconv.Itoa(b.seq),
			UserID:        fmt.Sprintf("user-%03d", rand.IntN(200)),
			Message:       messages[rand.IntN(len(messages))],
			ReactionCount: rand.IntN(25),
			Timestamp:     stamp,
		}
		b.chats = appendBounded(b.chats, c)
		b.numChats++
		b.totalReactions += c.ReactionCount
	}
	for range rand.IntN(2) {
		b.seq++
		d := donation{
			EventID:   "donation-" + strconv.Itoa(b.seq),
			UserID:    fmt.Sprintf("user-%03d", rand.IntN(200)),
			Amount:    float64(rand.IntN(10000)) / 100,
			Currency:  "CAD",
			Timestamp: stamp,
		}
		b.donations = appendBounded(b.donations, d)
		b.numDonations++
		b.totalDonations += d.Amount
	}
}

func appendBounded[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > maxEvents {
		s = s[len(s)-maxEvents:]
	}
	return s
}

var messages = []string{
	"first!", "gg", "that play was unreal", "hello from Vancouver",
	"lol", "can you do a giveaway?", "PogChamp", "good morning chat",
}

// flaky writes a 503 and reports true for the configured share of requests.
func (b *Backend) flaky(w http.ResponseWriter, r *http.Request) bool {
	if b.failureRate == 0 || rand.Float64() >= b.failureRate {
		return false
	}
	b.logger.Info("injecting failure", "path", r.URL.Path)
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("<html><body><h1>503 Service Unavailable</h1></body></html>"))
	return true
}

func (b *Backend) handleProcessingStats(w http.ResponseWriter, r *http.Request) {
	if b.flaky(w, r) {
		return
	}
	b.mu.Lock()
	b.admit()
	stats := map[string]any{
		"num_chats":            b.numChats,
		"total_chat_reactions": b.totalReactions,
		"num_donations":        b.numDonations,
		"total_donations":      roundCents(b.totalDonations),
		"last_updated":         b.now().UTC().Format(timeLayout),
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) handleAnalyzerStats(w http.ResponseWriter, r *http.Request) {
	if b.flaky(w, r) {
		return
	}
	b.mu.Lock()
	stats := map[string]any{
		"num_chats":     b.numChats,
		"num_donations": b.numDonations,
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	if b.flaky(w, r) {
		return
	}
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if index >= len(b.chats) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": fmt.Sprintf("No chat message at index %d!", index),
		})
		return
	}
	writeJSON(w, http.StatusOK, b.chats[index])
}

func (b *Backend) handleDonation(w http.ResponseWriter, r *http.Request) {
	if b.flaky(w, r) {
		return
	}
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if index >= len(b.donations) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": fmt.Sprintf("No donation message at index %d!", index),
		})
		return
	}
	writeJSON(w, http.StatusOK, b.donations[index])
}

func (b *Backend) handleChecks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	checks := b.checks
	b.mu.Unlock()
	if checks == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No checks available"})
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// handleUpdate runs a consistency check. The simulated store drops every
// tenth chat, so not_in_db is usually non-empty.
func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := b.now()

	b.mu.Lock()
	notInDB := []string{}
	for i, c := range b.chats {
		if i%10 == 9 {
			notInDB = append(notInDB, c.EventID)
		}
	}
	counts := map[string]any{"chat_count": b.numChats, "donation_count": b.numDonations}
	b.checks = map[string]any{
		"last_updated": b.now().UTC().Format(timeLayout),
		"counts": map[string]any{
			"db": map[string]any{
				"chat_count":     b.numChats - len(notInDB),
				"donation_count": b.numDonations,
			},
			"queue":      counts,
			"processing": counts,
		},
		"not_in_db":    notInDB,
		"not_in_queue": []string{},
	}
	b.mu.Unlock()

	elapsed := b.now().Sub(start)
	b.logger.Info("consistency check completed", "missing_in_db", len(notInDB))
	writeJSON(w, http.StatusOK, map[string]any{"processing_time_ms": elapsed.Milliseconds()})
}

func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "index must be a non-negative integer"})
		return 0, false
	}
	return index, true
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
