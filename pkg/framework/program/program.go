// Package program defines the compiled artifact handed from the graph
// compiler to the audio executor: a linear list of operations over flat
// buffer pools, with no names or topology left to resolve at run time.
package program

import (
	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// Connection records that an input slot's buffer is filled, before the
// owning operation runs, from an output slot's buffer.
type Connection struct {
	SrcOutSlot int
	DstInSlot  int
}

// ModOp describes how one modulated input slot's effective per-sample
// buffer is derived from the connected signal and a modulation amount.
type ModOp struct {
	DestInSlot int
	SrcOutSlot int
	Amount     float64
	Semantic   registry.ModSemantic
}

// InstanceKey identifies a node instance for state-preservation matching
// across program swaps.
type InstanceKey struct {
	Kind     string
	Instance int
}

// Operation is one scheduled node instance: its slot ranges into the
// program's flat pools and its per-instance mutable state.
type Operation struct {
	Kind     string
	Instance int
	Def      *registry.Def
	State    any

	InStart, InLen     int
	OutStart, OutLen   int
	AtomStart, AtomLen int
	ModStart, ModLen   int

	Feedback registry.Feedback

	// InsScratch/OutsScratch are allocated once at compile time and
	// reused every block so the executor never allocates a [][]float32
	// per operation per call.
	InsScratch  [][]float32
	OutsScratch [][]float32

	// ArgsScratch is the registry.Args value passed to Def.Process, owned
	// by this operation and reused every block so the executor never
	// allocates one per operation per call.
	ArgsScratch registry.Args
}

func (op *Operation) Key() InstanceKey {
	return InstanceKey{Kind: op.Kind, Instance: op.Instance}
}

// Program is the self-contained, ready-to-run artifact produced by
// graph.Compile. All slices are sized exactly at compile time; the audio
// thread never grows them.
type Program struct {
	SampleRate float64

	Operations []Operation

	InputPool  []portbuf.Buffer
	OutputPool []portbuf.Buffer

	ParamArray []float64
	AtomArray  []portbuf.Atom

	Connections []Connection
	ModOps      []ModOp

	InConnected  []bool
	OutConnected []bool
	// ModulatedInput marks input slots whose effective buffer is produced
	// by a ModOp instead of a plain connection copy.
	ModulatedInput []bool

	OutputFeedback []float64

	// SmootherTarget carries, per input slot, the post-smoothing value
	// to resume from when a program is swapped in with state preserved.
	SmootherTarget []float64
	// PrevOutputLast carries the last-sample value of every output slot
	// at swap time, for the continuity check in S3.
	PrevOutputLast []float64
}

// New allocates a program with pools sized for the given slot counts.
func New(numIn, numOut, numAtom int) *Program {
	return &Program{
		InputPool:      make([]portbuf.Buffer, numIn),
		OutputPool:     make([]portbuf.Buffer, numOut),
		ParamArray:     make([]float64, numIn),
		AtomArray:      make([]portbuf.Atom, numAtom),
		InConnected:    make([]bool, numIn),
		OutConnected:   make([]bool, numOut),
		ModulatedInput: make([]bool, numIn),
		OutputFeedback: make([]float64, numOut),
		SmootherTarget: make([]float64, numIn),
		PrevOutputLast: make([]float64, numOut),
	}
}

// FindOperation returns the operation matching key, or nil.
func (p *Program) FindOperation(key InstanceKey) *Operation {
	for i := range p.Operations {
		if p.Operations[i].Key() == key {
			return &p.Operations[i]
		}
	}
	return nil
}
