// Package handoff implements the bounded, single-producer/single-consumer
// ring buffers that move messages between the editing side and the audio
// thread without locks or allocation on either side's hot path.
package handoff

import (
	"sync/atomic"

	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/program"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// capacity must be a power of two; chosen generously against the
// per-block message rates the editor is expected to produce.
const capacity = 256

const capacityMask = capacity - 1

// InjectedEvent is the generic payload of an InjectMIDI / MidiObserved
// message: exactly one of Note or CC is meaningful, selected by IsNote.
type InjectedEvent struct {
	IsNote bool
	Note   registry.MIDINote
	CC     registry.MIDICC
}

// ToExecutorKind tags the variant of a ToExecutor message.
type ToExecutorKind uint8

const (
	Clear ToExecutorKind = iota
	NewProgram
	AtomUpdate
	ParamUpdate
	ModAmountUpdate
	SetMonitor
	InjectMIDI
)

// ToExecutor is an editor -> executor handoff message. Only the fields
// relevant to Kind are meaningful.
type ToExecutor struct {
	Kind ToExecutorKind

	Program                 *program.Program
	PreservePreviousOutputs bool

	AtomSlot int
	NewAtom  portbuf.Atom

	ParamSlot int
	NewValue  float64

	ModSlot   int
	NewAmount float64

	MonitorSlots [3]int

	Event InjectedEvent
}

// ToEditorKind tags the variant of a ToEditor message.
type ToEditorKind uint8

const (
	DropProgram ToEditorKind = iota
	DropAtom
	MidiObserved
)

// ToEditor is an executor -> editor return-channel message.
type ToEditor struct {
	Kind    ToEditorKind
	Program *program.Program
	Atom    portbuf.Atom
	Event   InjectedEvent
}

// ringToExecutor is a fixed-capacity SPSC ring buffer of ToExecutor
// messages. head is owned by the consumer (executor), tail by the
// producer (editor); each is updated with Store/Load so the other side
// never observes a torn value.
type ringToExecutor struct {
	buf  [capacity]ToExecutor
	head atomic.Uint64
	tail atomic.Uint64
}

func NewEditorToExecutor() *EditorToExecutor {
	return &EditorToExecutor{r: &ringToExecutor{}}
}

// EditorToExecutor is the editor-facing handle on the ring.
type EditorToExecutor struct{ r *ringToExecutor }

// TryPush attempts to enqueue msg without blocking. It reports whether
// the ring had room. The editor may call this in a bounded retry loop;
// it never allocates.
func (e *EditorToExecutor) TryPush(msg ToExecutor) bool {
	r := e.r
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= capacity {
		return false
	}
	r.buf[tail&capacityMask] = msg
	r.tail.Store(tail + 1)
	return true
}

// Push retries TryPush until it succeeds, spinning briefly. Only the
// editor side may call this; the executor must never spin.
func (e *EditorToExecutor) Push(msg ToExecutor) {
	for !e.TryPush(msg) {
		// editor threads may spin briefly on a full channel
	}
}

// ExecutorSide returns the consumer-only handle for the audio thread.
func (e *EditorToExecutor) ExecutorSide() *ExecutorIn { return &ExecutorIn{r: e.r} }

// ExecutorIn is the audio-thread-facing, drain-only handle on the ring.
type ExecutorIn struct{ r *ringToExecutor }

// Drain calls fn for every message currently available, in FIFO order,
// and returns the count drained. It never blocks and never allocates.
func (x *ExecutorIn) Drain(fn func(ToExecutor)) int {
	r := x.r
	head := r.head.Load()
	tail := r.tail.Load()
	n := 0
	for head != tail {
		fn(r.buf[head&capacityMask])
		head++
		n++
	}
	r.head.Store(head)
	return n
}

// ringToEditor is the executor -> editor return channel, symmetric to
// ringToExecutor with producer and consumer roles swapped.
type ringToEditor struct {
	buf  [capacity]ToEditor
	head atomic.Uint64
	tail atomic.Uint64
}

func NewExecutorToEditor() *ExecutorToEditor {
	return &ExecutorToEditor{r: &ringToEditor{}}
}

// ExecutorToEditor is the editor-facing handle on the return ring.
type ExecutorToEditor struct{ r *ringToEditor }

// ExecutorSide returns the producer-only handle for the audio thread.
func (e *ExecutorToEditor) ExecutorSide() *ExecutorOut { return &ExecutorOut{r: e.r} }

// ExecutorOut is the audio-thread-facing, push-only handle on the return
// ring. TryPush never spins: a full return channel means the message is
// silently dropped.
type ExecutorOut struct{ r *ringToEditor }

func (x *ExecutorOut) TryPush(msg ToEditor) bool {
	r := x.r
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= capacity {
		return false
	}
	r.buf[tail&capacityMask] = msg
	r.tail.Store(tail + 1)
	return true
}

// Drain is called by the editor to consume observations.
func (e *ExecutorToEditor) Drain(fn func(ToEditor)) int {
	r := e.r
	head := r.head.Load()
	tail := r.tail.Load()
	n := 0
	for head != tail {
		fn(r.buf[head&capacityMask])
		head++
		n++
	}
	r.head.Store(head)
	return n
}
