// Package store holds the web dashboard's display state with pub/sub.
//
// This package is internal to statboard. [MemoryStore] is the display surface
// behind the browser dashboard: it keeps the current text of every slot and
// the live error notices, and publishes every change so Server-Sent Events
// clients can mirror it.
//
// The main components are:
//
//   - [Store]: interface defining rendering, notice mirroring and subscriptions
//   - [MemoryStore]: in-memory implementation of Store
//   - [Event]: one published change
//   - [Snapshot]: the full display state at one instant
//
// Subscribers receive events via buffered channels with non-blocking sends:
// a slow subscriber misses events rather than blocking the poller.
package store
