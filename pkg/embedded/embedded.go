// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard assets embedded in the Go binary. The
// dashboard is a single static page (no build tooling): it creates
// experiments, streams progress over SSE and draws the measurement
// histogram and fit overlay from the chart endpoints.
//
//go:embed static
var Files embed.FS
