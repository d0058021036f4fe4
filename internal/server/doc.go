// Package server provides the HTTP server for the statboard dashboard and API.
//
// This package is internal to statboard and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded HTML page at "/"
//   - Snapshot: JSON of every slot and live notice at "/api/snapshot"
//   - Server-Sent Events: real-time slot and notice changes at "/api/sse"
//   - Manual update: "POST /api/update" fires the update trigger, rate limited
//   - Early dismissal: "DELETE /api/notices/{id}"
//   - Operations: "/metrics" for Prometheus and "/healthz"
//
// Routing uses chi. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
//
// Users of the statboard library should not need to interact with this
// package directly. The server is started by [statboard.StatBoard.Start].
package server
