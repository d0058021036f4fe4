// Package poller fetches every configured source on a fixed interval and
// renders the results.
//
// This package is internal to statboard. It owns the poll loop described by
// the dashboard: one immediate cycle, then one cycle per interval; within a
// cycle every source is fetched on its own goroutine and renders into its own
// display slot when it completes. Failures become error notices and never
// touch the slot.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with optional per-request timeout and a body size limit
//   - [Poller]: the start/stop/single-step poll loop
//   - [SourceInfo]: configuration for one source
//   - [Result]: outcome of fetching one source
//
// Users of the statboard library should not need to interact with this
// package directly.
package poller
