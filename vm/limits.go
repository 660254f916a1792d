// Package vm implements Ouros's dispatch core: the opcode interpreter, the
// dunder-lookup/NotImplemented/reflected/fallback machinery, the resource
// tracker, and the suspension/resumption protocol.
package vm

import (
	"fmt"
	"time"
)

// Limits mirrors spec §6's Limits object. Any field left at its zero
// value is unbounded, MaxRecursionDepth included (a negative depth is
// unbounded too). The §4.5 default depth of 1000 is applied explicitly
// by DefaultLimits below rather than by the zero value.
type Limits struct {
	MaxAllocations    int64
	MaxMemoryBytes    int64
	MaxDurationSecs   float64
	MaxRecursionDepth int
	GCInterval        time.Duration // reserved, not implemented
}

// DefaultLimits applies spec §4.5's stated default recursion depth and
// leaves everything else unbounded.
func DefaultLimits() Limits {
	return Limits{MaxRecursionDepth: 1000}
}

// Tracker enforces Limits against a running VM. Allocation accounting is
// approximated by heap payload bytes, as spec §4.5 allows; time is polled
// at opcode boundaries (safe points) rather than via a background timer,
// so a breach is always synchronous with the bytecode that triggers it.
type Tracker struct {
	limits    Limits
	started   time.Time
	allocs    int64
	memBytes  int64
	depth     int
}

func NewTracker(limits Limits) *Tracker {
	return &Tracker{limits: limits, started: time.Now()}
}

// CheckSafePoint runs the time check; called once per opcode boundary.
func (t *Tracker) CheckSafePoint() error {
	if t.limits.MaxDurationSecs > 0 {
		if time.Since(t.started).Seconds() > t.limits.MaxDurationSecs {
			return &TimeoutBreach{}
		}
	}
	return nil
}

// BeforeAlloc is consulted before a heap slot is created; on breach the
// allocation must not happen at all.
func (t *Tracker) BeforeAlloc(payloadBytes int64) error {
	if t.limits.MaxAllocations > 0 && t.allocs+1 > t.limits.MaxAllocations {
		return &MemoryBreach{Reason: "max_allocations exceeded"}
	}
	if t.limits.MaxMemoryBytes > 0 && t.memBytes+payloadBytes > t.limits.MaxMemoryBytes {
		return &MemoryBreach{Reason: "max_memory exceeded"}
	}
	return nil
}

// AfterAlloc records a successful allocation's accounting.
func (t *Tracker) AfterAlloc(payloadBytes int64) {
	t.allocs++
	t.memBytes += payloadBytes
}

// AfterFree gives back accounted memory on decref-to-zero; allocation
// count is never decremented, matching a monotonically increasing
// allocation counter rather than a live-object counter.
func (t *Tracker) AfterFree(payloadBytes int64) {
	t.memBytes -= payloadBytes
	if t.memBytes < 0 {
		t.memBytes = 0
	}
}

// PushFrame enforces max_recursion_depth on frame push.
func (t *Tracker) PushFrame() error {
	if t.limits.MaxRecursionDepth > 0 && t.depth+1 > t.limits.MaxRecursionDepth {
		return &RecursionBreach{Depth: t.depth + 1, Max: t.limits.MaxRecursionDepth}
	}
	t.depth++
	return nil
}

func (t *Tracker) PopFrame() {
	if t.depth > 0 {
		t.depth--
	}
}

// MemoryBreach, TimeoutBreach, RecursionBreach are host-side signals the
// dispatch core turns into the corresponding Python exception at the
// current safe point; they are not themselves Python exceptions, since a
// breach during suspension is impossible (spec §4.6 Cancellation) and the
// VM otherwise never returns them across the driver boundary directly.
type MemoryBreach struct{ Reason string }

func (e *MemoryBreach) Error() string { return fmt.Sprintf("memory breach: %s", e.Reason) }

type TimeoutBreach struct{}

func (e *TimeoutBreach) Error() string { return "timeout breach" }

type RecursionBreach struct{ Depth, Max int }

func (e *RecursionBreach) Error() string {
	return fmt.Sprintf("recursion breach: depth %d exceeds max %d", e.Depth, e.Max)
}
