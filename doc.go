// Package statboard provides an embeddable stats dashboard that periodically
// polls a fixed set of JSON endpoints and shows each response, verbatim, in
// a named display slot.
//
// Every cycle stamps the "last-updated-value" slot with the current time and
// fetches every source concurrently. A JSON response replaces its slot's text
// with the compact JSON serialization of the body. A failed request or a
// non-JSON body leaves the slot untouched and raises a transient error
// notice that disappears after a fixed time-to-live.
//
// # Quick Start
//
//	sources, _ := statboard.PathTopology("http://vm.example.com")
//	sb, _ := statboard.New(
//	    statboard.WithSources(sources...),
//	    statboard.WithUpdateURL(statboard.PathUpdateURL("http://vm.example.com")),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sb.Start(ctx) // blocks until context is cancelled
//
// # Sources
//
// Each [Source] maps one URL to one slot. A URL may contain {{.Index}}, which
// is replaced on every cycle by a random sample index in [0, 10):
//
//	src, err := statboard.NewSource("event-chat",
//	    "http://localhost:8110/stream/chats?index={{.Index}}",
//	    statboard.WithHeaders("Authorization", "Bearer token"),
//	    statboard.WithTimeout(5*time.Second),
//	)
//
// [PathTopology] and [PortTopology] return the two standard layouts.
//
// # Manual Update
//
// With [WithUpdateURL], the dashboard's update button (or [StatBoard.TriggerUpdate])
// sends one POST to the update endpoint. The reply is logged and handed to
// update callbacks; it never changes a slot.
//
// # Architecture
//
//   - internal/poller: the poll cycle and HTTP client
//   - internal/notice: error notices with time-to-live
//   - internal/display: the slot names and the Sink abstraction
//   - internal/store: web display state with pub/sub
//   - internal/server: HTTP server with Server-Sent Events
//   - internal/tui: terminal display
//   - internal/trigger: the manual update request
//   - internal/metrics: Prometheus collectors
//   - dashboard: embedded web UI assets
package statboard
