// Package enginelog is the audio-thread-safe logging path: a fixed-size
// SPSC ring of pre-formatted events, pushed from the audio thread with
// no syscalls and no allocation, drained and emitted through log/slog
// from an ordinary goroutine.
package enginelog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

const ringCapacity = 512
const ringMask = ringCapacity - 1

// Event is one logged occurrence. Fields are fixed-shape so a push never
// allocates: Msg must be a string literal or other already-interned
// string, never the result of fmt.Sprintf on the audio thread.
type Event struct {
	Level slog.Level
	Msg   string
	A, B  int64
	F     float64
}

type ring struct {
	buf  [ringCapacity]Event
	head atomic.Uint64
	tail atomic.Uint64
}

// Ring is the audio-thread-side handle: only Push is safe to call from
// the thread running Executor.Process.
type Ring struct {
	r *ring
}

// Sink is the drain-side handle, read by a single background goroutine.
type Sink struct {
	r      *ring
	logger *slog.Logger
}

// New creates a connected Ring/Sink pair. logger defaults to
// slog.Default() when nil, matching how the rest of this codebase
// falls back when no logger is configured.
func New(logger *slog.Logger) (*Ring, *Sink) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ring{}
	return &Ring{r: r}, &Sink{r: r, logger: logger}
}

// Push enqueues ev without blocking. If the ring is full the event is
// silently dropped; the audio thread never waits on the log drain.
func (rg *Ring) Push(ev Event) bool {
	head := rg.r.head.Load()
	tail := rg.r.tail.Load()
	if head-tail >= ringCapacity {
		return false
	}
	rg.r.buf[head&ringMask] = ev
	rg.r.head.Store(head + 1)
	return true
}

// Enabled reports whether a log call at level would be emitted, so the
// caller can skip building an Event entirely on the hot path.
func (s *Sink) Enabled(level slog.Level) bool {
	return s.logger.Enabled(context.Background(), level)
}

// Drain emits every currently queued event through slog. Call this from
// a dedicated goroutine, e.g. on a timer tick.
func (s *Sink) Drain() int {
	n := 0
	for {
		tail := s.r.tail.Load()
		head := s.r.head.Load()
		if tail == head {
			return n
		}
		ev := s.r.buf[tail&ringMask]
		s.r.tail.Store(tail + 1)
		s.emit(ev)
		n++
	}
}

func (s *Sink) emit(ev Event) {
	s.logger.Log(context.Background(), ev.Level, ev.Msg,
		slog.Int64("a", ev.A),
		slog.Int64("b", ev.B),
		slog.Float64("f", ev.F),
	)
}
