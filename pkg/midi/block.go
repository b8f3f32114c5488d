package midi

import (
	"sort"

	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// Per-block bounds mirrored from the executor's external interface
// contract: a fixed number of note and CC events may be scheduled within
// a single audio block.
const (
	MaxNotesPerBlock    = 512
	MaxCCPerBlock       = 1024
	MaxInjectedPerDrain = 64
)

// BlockEvents holds the bounded, sorted note and CC lists the executor
// builds once per block from injected events plus whatever the host
// handed it. It is a fixed-size value type: no allocation, no locking,
// safe to keep embedded directly in the executor's state.
type BlockEvents struct {
	Notes    [MaxNotesPerBlock]registry.MIDINote
	NumNotes int
	CCs      [MaxCCPerBlock]registry.MIDICC
	NumCCs   int
}

// Reset clears both lists without releasing the backing arrays.
func (b *BlockEvents) Reset() {
	b.NumNotes = 0
	b.NumCCs = 0
}

// AddNote appends a note event, dropping it silently once the block is
// full; reports whether it was accepted.
func (b *BlockEvents) AddNote(n registry.MIDINote) bool {
	if b.NumNotes >= MaxNotesPerBlock {
		return false
	}
	b.Notes[b.NumNotes] = n
	b.NumNotes++
	return true
}

// AddCC appends a control-change event, dropping it silently once the
// block is full; reports whether it was accepted.
func (b *BlockEvents) AddCC(cc registry.MIDICC) bool {
	if b.NumCCs >= MaxCCPerBlock {
		return false
	}
	b.CCs[b.NumCCs] = cc
	b.NumCCs++
	return true
}

// Sort orders both lists by intra-block sample offset, stably, so ties
// preserve insertion order.
func (b *BlockEvents) Sort() {
	notes := b.Notes[:b.NumNotes]
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].SampleOffset < notes[j].SampleOffset })
	ccs := b.CCs[:b.NumCCs]
	sort.SliceStable(ccs, func(i, j int) bool { return ccs[i].SampleOffset < ccs[j].SampleOffset })
}
