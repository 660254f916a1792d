package session

import (
	"context"
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// ringHandler is a slog.Handler that keeps the last N records in memory,
// surfaced through the inspect path (SPEC_FULL.md §1) instead of requiring
// a host to scrape stderr for session-lifecycle/resource-breach events.
type ringHandler struct {
	mu      sync.Mutex
	records []slog.Record
	cap     int
}

func newRingHandler(capacity int) *ringHandler {
	return &ringHandler{cap: capacity}
}

func (h *ringHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ringHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if len(h.records) > h.cap {
		h.records = h.records[len(h.records)-h.cap:]
	}
	return nil
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // attrs are rare on this path (lifecycle/breach events only); not worth a wrapping clone
}

func (h *ringHandler) WithGroup(name string) slog.Handler { return h }

// Recent returns a snapshot of the most recently logged records as plain
// strings, newest last.
func (h *ringHandler) Recent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.records))
	for i, r := range h.records {
		out[i] = r.Level.String() + " " + r.Message
	}
	return out
}

// newLogger fans session-lifecycle and resource-breach events out to
// stderr and an in-memory ring buffer simultaneously (SPEC_FULL.md §1),
// grounded on reusee-tai's slogmulti.Fanout-based logger constructor. The
// VM's per-opcode dispatch never logs; only the session manager does.
func newLogger() (*slog.Logger, *ringHandler) {
	ring := newRingHandler(256)
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(slogmulti.Fanout(stderrHandler, ring))
	return logger, ring
}
