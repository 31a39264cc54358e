// Package logging provides the single structured logger every component logs
// through, built on charmbracelet/log. Debug covers skipped/malformed
// records, unlinked sub-agents, and cache misses; warn covers oversize lines
// and regex rejections; error is reserved for conditions that degrade a
// subsystem (e.g. a cache open failure). Nothing in this codebase panics on
// bad input data — logging replaces panicking.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu   sync.Mutex
	base = newDefault()
)

func newDefault() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})
}

// SetOutput redirects all future log output, for tests that want to capture
// or silence it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetLevel adjusts the global minimum log level.
func SetLevel(level log.Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(level)
}

// For returns a named sub-logger, e.g. For("coordinator"), whose output
// carries a "component" key so log lines can be filtered per subsystem.
func For(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.With("component", component)
}
