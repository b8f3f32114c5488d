// Package portbuf defines the shapes of data that cross every other
// component boundary in the engine: block buffers, atoms, and port
// references resolved at compile time to integer slots.
package portbuf

import (
	"sync/atomic"

	"github.com/go-audio/audio"
)

// MaxBlock is the largest number of sample frames processed by a single
// operation in one call. Host buffers longer than MaxBlock are subdivided
// by the executor's caller.
const MaxBlock = 256

// Buffer is a block of sample-rate floats, always exactly MaxBlock long.
// It is logically owned by the slot it is allocated to; operations only
// ever write into the slice they were handed for their own output ports.
type Buffer [MaxBlock]float32

// Slice returns the first n samples of the buffer, n <= MaxBlock.
func (b *Buffer) Slice(n int) []float32 {
	if n > MaxBlock {
		n = MaxBlock
	}
	return b[:n]
}

// AtomKind tags the active member of an Atom union.
type AtomKind uint8

const (
	AtomInt AtomKind = iota
	AtomFloat
	AtomString
	AtomSampleRef
	AtomHandleRef
)

// SampleRef is a reference-counted, read-only handle to an in-memory
// sample array. Loading bytes from disk into one is outside this package's
// responsibility. refs starts at 1, held by whoever constructs it (the
// editor); every additional owner (a compiled program's AtomArray slot)
// must call AddRef, and every owner that stops referencing it must call
// Release exactly once.
type SampleRef struct {
	Buffer *audio.FloatBuffer
	refs   atomic.Int32
}

// NewSampleAtom wraps buf in a SampleRef owned, at construction, by the
// caller alone.
func NewSampleAtom(buf *audio.FloatBuffer) Atom {
	s := &SampleRef{Buffer: buf}
	s.refs.Store(1)
	return Atom{Kind: AtomSampleRef, Sample: s}
}

// AddRef registers a new owner and returns the resulting count.
func (s *SampleRef) AddRef() int32 { return s.refs.Add(1) }

// Release drops one owner's reference and returns the resulting count.
// The audio thread must never be the caller that observes a count of
// zero: it always drops its reference back to the editor via DropAtom
// instead of freeing anything itself.
func (s *SampleRef) Release() int32 { return s.refs.Add(-1) }

// RefCount reports the current owner count.
func (s *SampleRef) RefCount() int32 { return s.refs.Load() }

// HandleRef is a reference-counted opaque handle (MIDI recording, scope
// buffer) shared read-only between the editor and the audio thread. Same
// ownership contract as SampleRef.
type HandleRef struct {
	Value any
	refs  atomic.Int32
}

// NewHandleAtom wraps v in a HandleRef owned, at construction, by the
// caller alone.
func NewHandleAtom(v any) Atom {
	h := &HandleRef{Value: v}
	h.refs.Store(1)
	return Atom{Kind: AtomHandleRef, Handle: h}
}

func (h *HandleRef) AddRef() int32   { return h.refs.Add(1) }
func (h *HandleRef) Release() int32  { return h.refs.Add(-1) }
func (h *HandleRef) RefCount() int32 { return h.refs.Load() }

// Atom is a tagged union of the value kinds that can flow through an atom
// port. Atoms are piecewise-constant over a block: they are read once per
// block and never touched mid-block by the executor.
type Atom struct {
	Kind   AtomKind
	Int    int64
	Float  float64
	Str    string
	Sample *SampleRef
	Handle *HandleRef
}

func NewIntAtom(v int64) Atom    { return Atom{Kind: AtomInt, Int: v} }
func NewFloatAtom(v float64) Atom { return Atom{Kind: AtomFloat, Float: v} }
func NewStringAtom(v string) Atom { return Atom{Kind: AtomString, Str: v} }

// AddRef registers a new owner of a's payload, if it carries a
// reference-counted one. Installing an atom into a compiled program's
// AtomArray is a new ownership, whether at compile time or via a live
// AtomUpdate handoff message, and must call this exactly once per slot.
func (a Atom) AddRef() {
	switch a.Kind {
	case AtomSampleRef:
		if a.Sample != nil {
			a.Sample.AddRef()
		}
	case AtomHandleRef:
		if a.Handle != nil {
			a.Handle.AddRef()
		}
	}
}

// Release drops the calling owner's reference to a's payload, if any,
// and reports the resulting count (always 1 for non-ref-counted kinds,
// so callers can use <= 0 as a uniform "safe to free" test without a
// type switch of their own).
func (a Atom) Release() int32 {
	switch a.Kind {
	case AtomSampleRef:
		if a.Sample != nil {
			return a.Sample.Release()
		}
	case AtomHandleRef:
		if a.Handle != nil {
			return a.Handle.Release()
		}
	}
	return 1
}

// Ref identifies a port before compilation: a node kind, an instance
// index disambiguating multiple instances of that kind, and a port name.
// The compiler resolves a Ref to a Slot; nothing downstream of the
// compiler ever sees a Ref again.
type Ref struct {
	Kind     string
	Instance int
	Port     string
}

// Slot is a compile-time-assigned integer index into one of the
// program's flat buffer pools (input, output, parameter, atom,
// modulation). Slots are only ever produced by the compiler.
type Slot int

// Invalid marks a Slot that has not been resolved.
const Invalid Slot = -1
