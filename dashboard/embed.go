// Package dashboard provides the embedded web UI assets for statboard.
//
// The page subscribes to /api/sse and mirrors every slot and notice change.
// Users of the statboard library should not need to interact with this
// package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
