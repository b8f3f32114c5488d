package nodes

import (
	"math"
	"testing"

	"github.com/go-audio/audio"

	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

const testSampleRate = 44100.0
const testFrames = 32

// runBlock drives one Def through a single block with every input left at
// its declared default and every atom at its declared default, and reports
// the rendered outputs. It exists to smoke-test every built-in node kind
// the way graph.Compile + executor.Process would drive it, without paying
// for a full graph/executor round trip per kind.
func runBlock(t *testing.T, d *registry.Def) [][]float32 {
	t.Helper()

	var state any
	if d.Instantiate != nil {
		state = d.Instantiate(testSampleRate)
	}

	inputs := make([][]float32, len(d.Inputs))
	inConnected := make([]bool, len(d.Inputs))
	for i, p := range d.Inputs {
		buf := make([]float32, testFrames)
		for f := range buf {
			buf[f] = float32(p.Default)
		}
		inputs[i] = buf
	}

	outputs := make([][]float32, len(d.Outputs))
	outConnected := make([]bool, len(d.Outputs))
	for i := range outputs {
		outputs[i] = make([]float32, testFrames)
	}

	atoms := make([]portbuf.Atom, len(d.Atoms))
	for i, p := range d.Atoms {
		atoms[i] = p.Default
	}

	fb := &registry.Feedback{}
	ctx := &registry.ExecContext{}

	args := &registry.Args{
		State:        state,
		Inputs:       inputs,
		Atoms:        atoms,
		Outputs:      outputs,
		InConnected:  inConnected,
		OutConnected: outConnected,
		NumFrames:    testFrames,
		SampleRate:   testSampleRate,
		Ctx:          ctx,
		FB:           fb,
	}

	d.Process(args)

	for i, buf := range outputs {
		for f, v := range buf {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Errorf("kind %s: output %d frame %d is %v", d.Kind, i, f, v)
			}
		}
	}
	return outputs
}

func TestBuiltinNodesProcessWithoutPanicking(t *testing.T) {
	defs := []func() *registry.Def{
		oscillatorDef, filterDef, envelopeDef, arEnvDef, envFollowDef, ampDef, mix4Def, samplerDef,
		lfoDef, reverbDef, gainDef, panDef, autopanDef, dcBlockDef, noiseDef, inputDef, outDef,
		delayDef, compDef, driveDef, chorusDef, tremoloDef,
		expanderDef, gateDef, limiterDef, bitcrushDef, tapeDef, waveshapeDef,
		flangerDef, phaserDef, ringmodDef, eqDef, fdnReverbDef, xfadeDef,
	}
	for _, mk := range defs {
		d := mk()
		t.Run(d.Kind, func(t *testing.T) {
			runBlock(t, d)
		})
	}
}

func TestOscillatorProducesNonZeroSignal(t *testing.T) {
	d := oscillatorDef()
	out := runBlock(t, d)[0]
	nonZero := false
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("expected the sine oscillator to produce a non-zero signal at 440Hz over 32 frames")
	}
}

func TestOscillatorHardSyncResetsPhase(t *testing.T) {
	d := oscillatorDef()
	state := d.Instantiate(testSampleRate)

	freq := make([]float32, testFrames)
	for i := range freq {
		freq[i] = 220.0
	}
	pw := make([]float32, testFrames)
	sync := make([]float32, testFrames)
	sync[10] = 1.0 // a single rising edge partway through the block
	atoms := []portbuf.Atom{portbuf.NewIntAtom(1)} // sawtooth: monotonic within a cycle
	out := make([]float32, testFrames)

	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{freq, pw, sync},
		Atoms:      atoms,
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         &registry.Feedback{},
	}
	d.Process(args)

	// A sawtooth is 2*phase-1, so resetting phase to 0 on the sync edge
	// must drop the output back down near -1 at that frame.
	if out[10] > -0.9 {
		t.Fatalf("frame 10: expected a hard-sync reset near -1, got %v", out[10])
	}
}

func TestLFORetriggersPhaseOnNoteOn(t *testing.T) {
	d := lfoDef()

	newArgs := func(state any, notes []registry.MIDINote) (*registry.Args, []float32) {
		rate := make([]float32, testFrames)
		for i := range rate {
			rate[i] = 4.0
		}
		depth := make([]float32, testFrames)
		for i := range depth {
			depth[i] = 1.0
		}
		out := make([]float32, testFrames)
		return &registry.Args{
			State:      state,
			Inputs:     [][]float32{rate, depth},
			Outputs:    [][]float32{out},
			NumFrames:  testFrames,
			SampleRate: testSampleRate,
			Ctx:        &registry.ExecContext{Notes: notes},
			FB:         &registry.Feedback{},
		}, out
	}

	// Free-running: two blocks with no notes, phase keeps advancing.
	freeState := d.Instantiate(testSampleRate)
	args, _ := newArgs(freeState, nil)
	d.Process(args)
	args, freeOut := newArgs(freeState, nil)
	d.Process(args)

	// Retriggered: one block with no notes, then a note-on block.
	retrigState := d.Instantiate(testSampleRate)
	args, _ = newArgs(retrigState, nil)
	d.Process(args)
	args, retrigOut := newArgs(retrigState, []registry.MIDINote{{On: true, Note: 60, Velocity: 1.0}})
	d.Process(args)

	if freeOut[0] == retrigOut[0] {
		t.Fatalf("expected a note-on to retrigger the LFO's phase and change its output, both gave %v", freeOut[0])
	}
}

func TestChorusRetriggersVoicePhaseOnNoteOn(t *testing.T) {
	d := chorusDef()

	newArgs := func(state any, notes []registry.MIDINote) *registry.Args {
		sig := make([]float32, testFrames)
		for i := range sig {
			sig[i] = 1.0
		}
		rate := make([]float32, testFrames)
		for i := range rate {
			rate[i] = 0.5
		}
		depth := make([]float32, testFrames)
		for i := range depth {
			depth[i] = 0.5
		}
		return &registry.Args{
			State:      state,
			Inputs:     [][]float32{sig, rate, depth},
			Outputs:    [][]float32{make([]float32, testFrames), make([]float32, testFrames)},
			NumFrames:  testFrames,
			SampleRate: testSampleRate,
			Ctx:        &registry.ExecContext{Notes: notes},
			FB:         &registry.Feedback{},
		}
	}

	freeState := d.Instantiate(testSampleRate)
	d.Process(newArgs(freeState, nil))
	freeArgs := newArgs(freeState, nil)
	d.Process(freeArgs)

	retrigState := d.Instantiate(testSampleRate)
	d.Process(newArgs(retrigState, nil))
	retrigArgs := newArgs(retrigState, []registry.MIDINote{{On: true, Note: 60, Velocity: 1.0}})
	d.Process(retrigArgs)

	if freeArgs.Outputs[0][0] == retrigArgs.Outputs[0][0] {
		t.Fatalf("expected a note-on to retrigger the chorus voice phases and change its output, both gave %v", freeArgs.Outputs[0][0])
	}
}

func TestTremoloRetriggersPhaseOnNoteOn(t *testing.T) {
	d := tremoloDef()

	newArgs := func(state any, notes []registry.MIDINote) *registry.Args {
		sig := make([]float32, testFrames)
		for i := range sig {
			sig[i] = 1.0
		}
		rate := make([]float32, testFrames)
		for i := range rate {
			rate[i] = 5.0
		}
		depth := make([]float32, testFrames)
		for i := range depth {
			depth[i] = 1.0
		}
		return &registry.Args{
			State:      state,
			Inputs:     [][]float32{sig, rate, depth},
			Outputs:    [][]float32{make([]float32, testFrames)},
			NumFrames:  testFrames,
			SampleRate: testSampleRate,
			Ctx:        &registry.ExecContext{Notes: notes},
			FB:         &registry.Feedback{},
		}
	}

	freeState := d.Instantiate(testSampleRate)
	d.Process(newArgs(freeState, nil))
	freeArgs := newArgs(freeState, nil)
	d.Process(freeArgs)

	retrigState := d.Instantiate(testSampleRate)
	d.Process(newArgs(retrigState, nil))
	retrigArgs := newArgs(retrigState, []registry.MIDINote{{On: true, Note: 60, Velocity: 1.0}})
	d.Process(retrigArgs)

	if freeArgs.Outputs[0][0] == retrigArgs.Outputs[0][0] {
		t.Fatalf("expected a note-on to retrigger the tremolo phase and change its output, both gave %v", freeArgs.Outputs[0][0])
	}
}

func TestAutopanSweepsBetweenChannels(t *testing.T) {
	d := autopanDef()
	state := d.Instantiate(testSampleRate)

	sig := make([]float32, testFrames)
	for i := range sig {
		sig[i] = 1.0
	}
	rate := make([]float32, testFrames)
	for i := range rate {
		rate[i] = 4.0
	}
	depth := make([]float32, testFrames)
	for i := range depth {
		depth[i] = 1.0
	}
	l := make([]float32, testFrames)
	r := make([]float32, testFrames)
	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{sig, rate, depth},
		Outputs:    [][]float32{l, r},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         &registry.Feedback{},
	}
	d.Process(args)

	allEqual := true
	for i := range l {
		if l[i] != r[i] {
			allEqual = false
			break
		}
	}
	if allEqual {
		t.Fatal("expected the auto-panner's internal LFO to move energy between left and right over the block")
	}
}

func TestAREnvelopeHasNoSustainStage(t *testing.T) {
	d := arEnvDef()
	state := d.Instantiate(testSampleRate)

	fast := make([]float32, testFrames)
	for i := range fast {
		fast[i] = 0.0001
	}
	out := make([]float32, testFrames)
	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{fast, fast},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{Notes: []registry.MIDINote{{On: true, Note: 60, Velocity: 1.0}}},
		FB:         &registry.Feedback{},
	}
	d.Process(args)
	if out[testFrames-1] < 0.99 {
		t.Fatalf("expected a fast attack to reach near 1 within the block, got %v", out[testFrames-1])
	}

	// Release immediately, with no sustain stage to hold at in between:
	// unlike env (ADSR), this should fall straight back toward 0.
	out2 := make([]float32, testFrames)
	args2 := &registry.Args{
		State:      state,
		Inputs:     [][]float32{fast, fast},
		Outputs:    [][]float32{out2},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{Notes: []registry.MIDINote{{On: false, Note: 60}}},
		FB:         &registry.Feedback{},
	}
	d.Process(args2)
	if out2[testFrames-1] > 0.01 {
		t.Fatalf("expected a fast release with no sustain stage to fall near 0, got %v", out2[testFrames-1])
	}
}

func TestEnvFollowerTracksSignalAmplitude(t *testing.T) {
	d := envFollowDef()
	state := d.Instantiate(testSampleRate)

	sig := make([]float32, testFrames)
	for i := range sig {
		sig[i] = 1.0
	}
	attack := make([]float32, testFrames)
	for i := range attack {
		attack[i] = 0.001
	}
	release := make([]float32, testFrames)
	for i := range release {
		release[i] = 0.1
	}
	out := make([]float32, testFrames)
	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{sig, attack, release},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         &registry.Feedback{},
	}
	d.Process(args)

	if out[testFrames-1] < 0.5 {
		t.Fatalf("expected the follower to rise toward the input's amplitude, got %v", out[testFrames-1])
	}
}

func TestAmpAppliesGain(t *testing.T) {
	d := ampDef()
	in := make([]float32, testFrames)
	for i := range in {
		in[i] = 1.0
	}
	gainBuf := make([]float32, testFrames)
	for i := range gainBuf {
		gainBuf[i] = 0.5
	}
	out := make([]float32, testFrames)
	args := &registry.Args{
		Inputs:     [][]float32{in, gainBuf},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         &registry.Feedback{},
	}
	d.Process(args)
	for i, v := range out {
		if diff := v - 0.5; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("frame %d: amp(1.0, 0.5) = %v, want 0.5", i, v)
		}
	}
}

func TestSamplerEmitsSilenceWithoutASample(t *testing.T) {
	d := samplerDef()
	out := runBlock(t, d)[0]
	for i, v := range out {
		if v != 0 {
			t.Fatalf("frame %d: expected silence with no sample loaded, got %v", i, v)
		}
	}
}

func TestSamplerInterpolatesFractionalPlaybackPosition(t *testing.T) {
	d := samplerDef()
	state := d.Instantiate(testSampleRate)
	ref := portbuf.NewSampleAtom(&audio.FloatBuffer{Data: []float64{0, 1, 0, -1}})

	rate := make([]float32, testFrames)
	for i := range rate {
		rate[i] = 0.5
	}
	start := make([]float32, testFrames)
	out := make([]float32, testFrames)
	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{rate, start},
		Atoms:      []portbuf.Atom{ref},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         &registry.Feedback{},
	}
	d.Process(args)

	// Halfway between sample 0 (0) and sample 1 (1) should land near 0.5,
	// not snap to either integer-indexed neighbor.
	if out[1] < 0.4 || out[1] > 0.6 {
		t.Fatalf("frame 1: interpolated playback at position 0.5 = %v, want ~0.5", out[1])
	}
}

func TestInputNodeEmitsSilenceWithoutHostInputs(t *testing.T) {
	d := inputDef()
	out := runBlock(t, d)[0]
	for i, v := range out {
		if v != 0 {
			t.Fatalf("frame %d: expected silence with no host inputs bound, got %v", i, v)
		}
	}
}

func TestInputNodeReadsBoundHostChannel(t *testing.T) {
	d := inputDef()
	host := make([]float32, testFrames)
	for i := range host {
		host[i] = float32(i) / float32(testFrames)
	}
	out := make([]float32, testFrames)
	args := &registry.Args{
		Atoms:      []portbuf.Atom{portbuf.NewIntAtom(0)},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{HostInputs: [][]float32{host}},
		FB:         &registry.Feedback{},
	}
	d.Process(args)
	for i := range out {
		if out[i] != host[i] {
			t.Fatalf("frame %d: input node passthrough = %v, want %v", i, out[i], host[i])
		}
	}
}

func TestCompressorReportsGainReductionFeedback(t *testing.T) {
	d := compDef()
	state := d.Instantiate(testSampleRate)
	in := make([]float32, testFrames)
	for i := range in {
		in[i] = 1.0
	}
	thresh := make([]float32, testFrames)
	for i := range thresh {
		thresh[i] = -40
	}
	ratio := make([]float32, testFrames)
	for i := range ratio {
		ratio[i] = 4
	}
	out := make([]float32, testFrames)
	fb := &registry.Feedback{}
	args := &registry.Args{
		State:      state,
		Inputs:     [][]float32{in, thresh, ratio},
		Outputs:    [][]float32{out},
		NumFrames:  testFrames,
		SampleRate: testSampleRate,
		Ctx:        &registry.ExecContext{},
		FB:         fb,
	}
	d.Process(args)
	if fb.Level <= 0 {
		t.Errorf("expected positive gain reduction against a loud signal above threshold, got %v", fb.Level)
	}
}
