// Package registry enumerates node kinds: for each kind it holds the
// static port metadata and a factory producing the kind's per-instance
// mutable state. Lookup and instantiation both happen on the editing
// side, before a program reaches the audio thread.
package registry

import (
	"fmt"

	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
)

// ModSemantic fixes how a modulation amount combines with an upstream
// signal for a given input port; it is part of the port's declared
// behavior, not a per-connection choice.
type ModSemantic uint8

const (
	// ModAdd computes effective[i] = signal[i] + amount*mod_source[i].
	ModAdd ModSemantic = iota
	// ModScale computes effective[i] = signal[i] * (1 + amount*mod_source[i]).
	ModScale
)

// InputPort describes one signal input.
type InputPort struct {
	Name    string
	Default float64 // normalized default, used when the port is unconnected and unset
	ModKind ModSemantic
}

// OutputPort describes one signal output.
type OutputPort struct {
	Name string
}

// AtomPort describes one atom (piecewise-constant, per-block) port.
type AtomPort struct {
	Name    string
	Kind    portbuf.AtomKind
	Default portbuf.Atom
}

// MIDINote is one note event scheduled within the current block.
type MIDINote struct {
	On           bool
	Channel      uint8
	Note         uint8
	Velocity     float64 // normalized [0,1]
	SampleOffset int32
}

// MIDICC is one control-change event scheduled within the current block.
type MIDICC struct {
	Channel      uint8
	Controller   uint8
	Value        float64 // normalized [0,1]
	SampleOffset int32
}

// ExecContext carries the per-block external inputs every node's process
// function may read: MIDI scheduled for this block and an optional
// external-parameter handle shared read-only across the audio thread.
type ExecContext struct {
	Notes      []MIDINote
	CCs        []MIDICC
	ExtParam   *float64
	HostInputs [][]float32
}

// Feedback holds the small per-instance scalars a node reports back to
// the editor for display (LED level, phase). Values are published to an
// atomic snapshot by the executor after every block; nodes only ever
// write into the struct handed to them.
type Feedback struct {
	Level float64
	Phase float64
}

// Args bundles everything a process function receives for one block of
// one operation. Inputs, Atoms and Outputs are pre-sliced to NumFrames.
type Args struct {
	State        any
	Inputs       [][]float32
	Atoms        []portbuf.Atom
	Outputs      [][]float32
	InConnected  []bool
	OutConnected []bool
	NumFrames    int
	SampleRate   float64
	Ctx          *ExecContext
	FB           *Feedback
}

// ProcessFunc fills Outputs from Inputs, Atoms and per-instance State.
// It must be total: no panics, no allocation, no blocking.
type ProcessFunc func(a *Args)

// InstantiateFunc allocates the per-instance mutable state for a node
// kind. Allocation here is permitted: instantiation always happens on the
// editing side before any handoff to the audio thread.
type InstantiateFunc func(sampleRate float64) any

// SetSampleRateFunc is called whenever the sample rate changes, once per
// live instance.
type SetSampleRateFunc func(state any, sampleRate float64)

// Def is the static description of a node kind.
type Def struct {
	Kind        string
	Inputs      []InputPort
	Outputs     []OutputPort
	Atoms       []AtomPort
	Instantiate InstantiateFunc
	SetRate     SetSampleRateFunc
	Process     ProcessFunc
}

func (d *Def) InputIndex(name string) int {
	for i, p := range d.Inputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (d *Def) OutputIndex(name string) int {
	for i, p := range d.Outputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (d *Def) AtomIndex(name string) int {
	for i, p := range d.Atoms {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// LookupError is returned when a kind or port name is not known to the
// registry. It is always resolved before a program reaches the executor.
type LookupError struct {
	Kind string
	Port string
}

func (e *LookupError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("registry: unknown node kind %q", e.Kind)
	}
	return fmt.Sprintf("registry: unknown port %q on kind %q", e.Port, e.Kind)
}

// Registry is the set of node kinds known at compile time.
type Registry struct {
	kinds map[string]*Def
	order []string
}

func New() *Registry {
	return &Registry{kinds: make(map[string]*Def)}
}

// Register adds a node kind definition. Re-registering an existing kind
// replaces it; this lets an external JIT code-node compiler or block
// language front end add kinds at the same contract boundary as the
// built-in node library.
func (r *Registry) Register(d *Def) {
	if _, exists := r.kinds[d.Kind]; !exists {
		r.order = append(r.order, d.Kind)
	}
	r.kinds[d.Kind] = d
}

// Kinds returns the registered kind names in registration order.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the definition for kind, or a LookupError.
func (r *Registry) Lookup(kind string) (*Def, error) {
	d, ok := r.kinds[kind]
	if !ok {
		return nil, &LookupError{Kind: kind}
	}
	return d, nil
}

// PortIndex resolves a port name of kind on the named list (in/out/atom),
// returning a LookupError if the kind or the port is unknown.
func (r *Registry) PortIndex(kind, list, port string) (int, error) {
	d, err := r.Lookup(kind)
	if err != nil {
		return 0, err
	}
	var idx int
	switch list {
	case "in":
		idx = d.InputIndex(port)
	case "out":
		idx = d.OutputIndex(port)
	case "atom":
		idx = d.AtomIndex(port)
	}
	if idx < 0 {
		return 0, &LookupError{Kind: kind, Port: port}
	}
	return idx, nil
}

// Instantiate allocates fresh per-instance state for kind at the given
// sample rate.
func (r *Registry) Instantiate(kind string, sampleRate float64) (any, error) {
	d, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if d.Instantiate == nil {
		return nil, nil
	}
	return d.Instantiate(sampleRate), nil
}

// SetSampleRate notifies a live instance's state of a sample-rate change.
func (r *Registry) SetSampleRate(kind string, state any, sampleRate float64) {
	d, err := r.Lookup(kind)
	if err != nil || d.SetRate == nil {
		return
	}
	d.SetRate(state, sampleRate)
}
