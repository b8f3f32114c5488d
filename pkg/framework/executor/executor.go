// Package executor runs a compiled program one block at a time on the
// audio thread: it drains handoff messages, advances parameter
// smoothers, applies modulation, runs operations in topological order,
// and publishes feedback for the editing side. Nothing in this package
// allocates, blocks, or locks once Process is running.
package executor

import (
	"sync/atomic"

	"github.com/modulardsp/synthgraph/pkg/dsp"
	"github.com/modulardsp/synthgraph/pkg/dsp/debug"
	"github.com/modulardsp/synthgraph/pkg/framework/handoff"
	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/program"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
	"github.com/modulardsp/synthgraph/pkg/midi"
)

// MonitorSnapshot is a single-writer/multi-reader published copy of up
// to three tapped output slots' most recent block.
type MonitorSnapshot struct {
	Slots  [3]int
	Blocks [3]portbuf.Buffer
	Len    int
}

// FeedbackSnapshot is a single-writer/multi-reader published copy of
// every operation's per-instance feedback scalars, indexed the same way
// as the program's operation list at publish time.
type FeedbackSnapshot struct {
	Values []registry.Feedback
}

// Executor owns the current program and all audio-thread-only state.
type Executor struct {
	reg *registry.Registry
	in  *handoff.ExecutorIn
	out *handoff.ExecutorOut

	prog       *program.Program
	sampleRate float64
	smoothers  *smootherPool

	events      midi.BlockEvents
	injected    [midi.MaxInjectedPerDrain]handoff.InjectedEvent
	numInjected int
	execCtx     registry.ExecContext

	monitorSlots [3]int

	// Double-buffered publish targets: each publish writes into the
	// buffer the atomic pointer is NOT currently pointing at, then
	// swaps. Resized only when a program swap lands, never in the
	// steady-state per-block path.
	outFB    [2][]float64
	outFBIdx int
	fbSnap   [2]FeedbackSnapshot
	fbIdx    int
	monSnap  [2]MonitorSnapshot
	monIdx   int

	outputFeedback atomic.Pointer[[]float64]
	monitorSnap    atomic.Pointer[MonitorSnapshot]
	feedbackSnap   atomic.Pointer[FeedbackSnapshot]
}

// New creates an executor with an empty program, ready to receive its
// first NewProgram handoff message.
func New(reg *registry.Registry, in *handoff.EditorToExecutor, out *handoff.ExecutorToEditor, sampleRate float64) *Executor {
	e := &Executor{
		reg:        reg,
		in:         in.ExecutorSide(),
		out:        out.ExecutorSide(),
		prog:       program.New(0, 0, 0),
		sampleRate: sampleRate,
		smoothers:  newSmootherPool(sampleRate),
	}
	e.monitorSlots = [3]int{-1, -1, -1}
	e.resizeForProgram(e.prog)
	return e
}

// resizeForProgram allocates the double-buffered publish targets for a
// new program's slot counts. This runs only when a program swap lands
// (an infrequent, editor-driven event), never per block.
func (e *Executor) resizeForProgram(p *program.Program) {
	n := len(p.OutputPool)
	e.outFB[0] = make([]float64, n)
	e.outFB[1] = make([]float64, n)
	e.outFBIdx = 0
	e.outputFeedback.Store(&e.outFB[0])

	nops := len(p.Operations)
	e.fbSnap[0].Values = make([]registry.Feedback, nops)
	e.fbSnap[1].Values = make([]registry.Feedback, nops)
	e.fbIdx = 0
	e.feedbackSnap.Store(&e.fbSnap[0])

	e.monIdx = 0
	e.monitorSnap.Store(&e.monSnap[0])
}

// SetSampleRate updates the sample rate used by new smoother ramps and
// notifies every live instance's state.
func (e *Executor) SetSampleRate(rate float64) {
	e.sampleRate = rate
	e.smoothers.setSampleRate(rate)
	for i := range e.prog.Operations {
		op := &e.prog.Operations[i]
		e.reg.SetSampleRate(op.Kind, op.State, rate)
	}
}

// Process runs exactly one block of up to portbuf.MaxBlock frames. Hosts
// with longer buffers must subdivide before calling Process.
func (e *Executor) Process(nframes int, hostInputs [][]float32, hostNotes []registry.MIDINote, hostCCs []registry.MIDICC, outL, outR []float32) {
	if nframes > portbuf.MaxBlock {
		nframes = portbuf.MaxBlock
	}

	// No-ops outside a "debug" build; under it, panics if the host ever
	// hands in an unallocated output buffer instead of a reused one.
	debug.CheckAllocation(outL, "executor.outL")
	debug.CheckAllocation(outR, "executor.outR")

	e.drainHandoff()
	e.feedMIDI(hostNotes, hostCCs)
	e.advanceSmoothers(nframes)
	e.applyModulation(nframes)
	e.runOperations(nframes, hostInputs)
	e.publishOutput(outL, outR, nframes)
	e.publishFeedback()
	e.publishMonitors(nframes)
}

func (e *Executor) drainHandoff() {
	e.in.Drain(func(msg handoff.ToExecutor) {
		switch msg.Kind {
		case handoff.Clear:
			old := e.prog
			e.prog = program.New(0, 0, 0)
			e.resizeForProgram(e.prog)
			e.dropProgram(old)

		case handoff.NewProgram:
			old := e.prog
			e.prog = msg.Program
			e.resizeForProgram(e.prog)
			e.dropProgram(old)

		case handoff.AtomUpdate:
			if msg.AtomSlot >= 0 && msg.AtomSlot < len(e.prog.AtomArray) {
				old := e.prog.AtomArray[msg.AtomSlot]
				msg.NewAtom.AddRef()
				e.prog.AtomArray[msg.AtomSlot] = msg.NewAtom
				e.dropAtom(old)
			}

		case handoff.ParamUpdate:
			if msg.ParamSlot >= 0 && msg.ParamSlot < len(e.prog.ParamArray) {
				e.smoothers.retarget(msg.ParamSlot, e.prog.ParamArray[msg.ParamSlot], msg.NewValue)
			}

		case handoff.ModAmountUpdate:
			for i := range e.prog.ModOps {
				if e.prog.ModOps[i].DestInSlot == msg.ModSlot {
					e.prog.ModOps[i].Amount = msg.NewAmount
				}
			}

		case handoff.SetMonitor:
			e.monitorSlots = msg.MonitorSlots

		case handoff.InjectMIDI:
			if e.numInjected < len(e.injected) {
				e.injected[e.numInjected] = msg.Event
				e.numInjected++
			}
		}
	})
}

func (e *Executor) dropProgram(p *program.Program) {
	if p == nil {
		return
	}
	// every atom this program's AtomArray held a reference on loses that
	// owner along with the program itself; the audio thread only ever
	// decrements here, it never observes or acts on the resulting count.
	for _, a := range p.AtomArray {
		if a.Kind == portbuf.AtomSampleRef || a.Kind == portbuf.AtomHandleRef {
			a.Release()
		}
	}
	e.out.TryPush(handoff.ToEditor{Kind: handoff.DropProgram, Program: p})
}

func (e *Executor) dropAtom(a portbuf.Atom) {
	if a.Kind != portbuf.AtomSampleRef && a.Kind != portbuf.AtomHandleRef {
		return
	}
	// the audio thread's own reference goes away here; the editor holds
	// at least one more (its own, from construction) and is the only
	// side that may act once the count it observes reaches zero.
	a.Release()
	e.out.TryPush(handoff.ToEditor{Kind: handoff.DropAtom, Atom: a})
}

func (e *Executor) feedMIDI(hostNotes []registry.MIDINote, hostCCs []registry.MIDICC) {
	e.events.Reset()

	for i := 0; i < e.numInjected; i++ {
		ev := e.injected[i]
		if ev.IsNote {
			e.events.AddNote(ev.Note)
		} else {
			e.events.AddCC(ev.CC)
		}
	}
	e.numInjected = 0

	for _, n := range hostNotes {
		e.events.AddNote(n)
	}
	for _, c := range hostCCs {
		e.events.AddCC(c)
	}
	e.events.Sort()

	for i := 0; i < e.events.NumNotes; i++ {
		n := e.events.Notes[i]
		e.out.TryPush(handoff.ToEditor{Kind: handoff.MidiObserved, Event: handoff.InjectedEvent{IsNote: true, Note: n}})
	}
	for i := 0; i < e.events.NumCCs; i++ {
		c := e.events.CCs[i]
		e.out.TryPush(handoff.ToEditor{Kind: handoff.MidiObserved, Event: handoff.InjectedEvent{IsNote: false, CC: c}})
	}
}

func (e *Executor) advanceSmoothers(nframes int) {
	p := e.prog
	e.smoothers.advance(nframes, func(slot int) []float32 { return p.InputPool[slot].Slice(nframes) }, p.ParamArray)

	for slot := range p.InputPool {
		if p.InConnected[slot] || p.ModulatedInput[slot] {
			continue
		}
		if e.smoothers.isRamping(slot) {
			continue
		}
		fillFlat(p.InputPool[slot].Slice(nframes), p.ParamArray[slot])
	}
}

func (e *Executor) applyModulation(nframes int) {
	p := e.prog
	for _, m := range p.ModOps {
		base := p.ParamArray[m.DestInSlot]
		src := p.OutputPool[m.SrcOutSlot].Slice(nframes)
		dst := p.InputPool[m.DestInSlot].Slice(nframes)
		switch m.Semantic {
		case registry.ModScale:
			for i := 0; i < nframes; i++ {
				dst[i] = float32(base * (1.0 + m.Amount*float64(src[i])))
			}
		default: // ModAdd
			for i := 0; i < nframes; i++ {
				dst[i] = float32(base + m.Amount*float64(src[i]))
			}
		}
	}
}

func (e *Executor) runOperations(nframes int, hostInputs [][]float32) {
	p := e.prog

	// plain connection passthrough for every connected, unmodulated slot
	for _, c := range p.Connections {
		if p.ModulatedInput[c.DstInSlot] {
			continue
		}
		copy(p.InputPool[c.DstInSlot].Slice(nframes), p.OutputPool[c.SrcOutSlot].Slice(nframes))
	}

	e.execCtx.Notes = e.events.Notes[:e.events.NumNotes]
	e.execCtx.CCs = e.events.CCs[:e.events.NumCCs]
	e.execCtx.HostInputs = hostInputs

	for i := range p.Operations {
		op := &p.Operations[i]

		for j := 0; j < op.InLen; j++ {
			op.InsScratch[j] = p.InputPool[op.InStart+j].Slice(nframes)
		}
		for j := 0; j < op.OutLen; j++ {
			op.OutsScratch[j] = p.OutputPool[op.OutStart+j].Slice(nframes)
		}

		op.ArgsScratch.State = op.State
		op.ArgsScratch.Inputs = op.InsScratch
		op.ArgsScratch.Atoms = p.AtomArray[op.AtomStart : op.AtomStart+op.AtomLen]
		op.ArgsScratch.Outputs = op.OutsScratch
		op.ArgsScratch.InConnected = p.InConnected[op.InStart : op.InStart+op.InLen]
		op.ArgsScratch.OutConnected = p.OutConnected[op.OutStart : op.OutStart+op.OutLen]
		op.ArgsScratch.NumFrames = nframes
		op.ArgsScratch.SampleRate = e.sampleRate
		op.ArgsScratch.Ctx = &e.execCtx
		op.ArgsScratch.FB = &op.Feedback
		op.Def.Process(&op.ArgsScratch)
	}
}

func (e *Executor) publishOutput(outL, outR []float32, nframes int) {
	p := e.prog
	for slot := range p.OutputPool {
		buf := p.OutputPool[slot].Slice(nframes)
		if nframes > 0 {
			p.PrevOutputLast[slot] = float64(buf[nframes-1])
		}
	}

	idx := 1 - e.outFBIdx
	copy(e.outFB[idx], p.PrevOutputLast)
	e.outFBIdx = idx
	e.outputFeedback.Store(&e.outFB[idx])

	dsp.Clear(outL[:nframes])
	dsp.Clear(outR[:nframes])
	for i := range p.Operations {
		op := &p.Operations[i]
		if op.Kind != "out" {
			continue
		}
		ch1 := op.InStart
		ch2 := op.InStart + 1
		l := p.InputPool[ch1].Slice(nframes)
		r := p.InputPool[ch2].Slice(nframes)
		dsp.Add(outL[:nframes], l)
		dsp.Add(outR[:nframes], r)
	}
}

func (e *Executor) publishFeedback() {
	idx := 1 - e.fbIdx
	dst := e.fbSnap[idx].Values
	for i := range e.prog.Operations {
		dst[i] = e.prog.Operations[i].Feedback
	}
	e.fbIdx = idx
	e.feedbackSnap.Store(&e.fbSnap[idx])
}

func (e *Executor) publishMonitors(nframes int) {
	idx := 1 - e.monIdx
	snap := &e.monSnap[idx]
	snap.Slots = e.monitorSlots
	snap.Len = nframes
	for i, slot := range e.monitorSlots {
		if slot < 0 || slot >= len(e.prog.OutputPool) {
			continue
		}
		copy(snap.Blocks[i][:nframes], e.prog.OutputPool[slot].Slice(nframes))
	}
	e.monIdx = idx
	e.monitorSnap.Store(snap)
}

// OutputFeedback returns the most recently published per-output-slot
// feedback snapshot. Safe to call from any goroutine.
func (e *Executor) OutputFeedback() []float64 {
	p := e.outputFeedback.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Monitors returns the most recently published monitor snapshot.
func (e *Executor) Monitors() *MonitorSnapshot { return e.monitorSnap.Load() }

// Feedback returns the most recently published per-operation feedback
// snapshot.
func (e *Executor) Feedback() *FeedbackSnapshot { return e.feedbackSnap.Load() }
