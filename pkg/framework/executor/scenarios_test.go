package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modulardsp/synthgraph/pkg/dsp/analysis"
	"github.com/modulardsp/synthgraph/pkg/framework/graph"
	"github.com/modulardsp/synthgraph/pkg/framework/handoff"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
	"github.com/modulardsp/synthgraph/pkg/nodes"
)

const scenarioSampleRate = 44100.0
const scenarioBlockSize = 256

// renderSeconds runs a compiled program for the given duration, block by
// block, and returns the concatenated stereo output.
func renderSeconds(e *Executor, seconds float64) (left, right []float32) {
	total := int(seconds * scenarioSampleRate)
	left = make([]float32, 0, total)
	right = make([]float32, 0, total)
	buf := scenarioBlockSize
	outL := make([]float32, buf)
	outR := make([]float32, buf)
	for len(left) < total {
		n := buf
		if total-len(left) < n {
			n = total - len(left)
		}
		e.Process(n, nil, nil, nil, outL[:n], outR[:n])
		left = append(left, outL[:n]...)
		right = append(right, outR[:n]...)
	}
	return left, right
}

func sumAbs(s []float32) float64 {
	total := 0.0
	for _, v := range s {
		total += math.Abs(float64(v))
	}
	return total
}

// dominantBinHz runs a windowed FFT over a slice of samples and returns the
// frequency of the largest magnitude bin, grounded on the teacher's
// dsp/analysis.FFT helper.
func dominantBinHz(samples []float32, sampleRate float64) float64 {
	size := len(samples)
	fft := analysis.NewFFT(size, analysis.HannWindow)
	input := make([]float64, size)
	for i, v := range samples {
		input[i] = float64(v)
	}
	magnitude, _ := fft.Forward(input)
	best, bestMag := 0, -1.0
	for i, m := range magnitude {
		if m > bestMag {
			bestMag = m
			best = i
		}
	}
	return fft.GetFrequencyBin(best, sampleRate)
}

// S1: a sine oscillator feeding stereo output channel 1 only.
func TestScenarioSineToOutput(t *testing.T) {
	reg := registryWithNodes()
	g := graph.New()
	osc := g.AddNode("osc", 0)
	out := g.AddNode("out", 0)
	g.SetParam(osc, "freq", 440.0)
	g.Connect(osc, "sig", out, "ch1")

	prog, cerr := graph.Compile(reg, g, scenarioSampleRate, nil, false)
	require.Nil(t, cerr)

	e, toExec, _ := newScenarioExecutor(reg)
	toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog})

	left, right := renderSeconds(e, 4.0)

	gotSum := sumAbs(left)
	wantSum := 112301.0
	assert.InEpsilonf(t, wantSum, gotSum, 0.001, "abs-sum of channel 1 over 4s")

	for _, v := range right {
		assert.Equal(t, float32(0), v, "channel 2 must stay silent")
	}

	mid := len(left) / 2
	window := left[mid-512 : mid+512]
	hz := dominantBinHz(window, scenarioSampleRate)
	assert.InDeltaf(t, 440.0, hz, 40, "dominant FFT bin should sit near 440Hz")
}

// S3: recompiling an identical graph (plus one disconnected node) and
// swapping with state preserved must not discontinue the waveform.
func TestScenarioProgramSwapPreservesContinuity(t *testing.T) {
	reg := registryWithNodes()
	g := graph.New()
	osc := g.AddNode("osc", 0)
	out := g.AddNode("out", 0)
	g.SetParam(osc, "freq", 440.0)
	g.Connect(osc, "sig", out, "ch1")

	prog1, cerr := graph.Compile(reg, g, scenarioSampleRate, nil, false)
	require.Nil(t, cerr)

	e, toExec, _ := newScenarioExecutor(reg)
	toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog1})

	const nframes = scenarioBlockSize
	outL := make([]float32, nframes)
	outR := make([]float32, nframes)
	for i := 0; i < 40; i++ {
		e.Process(nframes, nil, nil, nil, outL, outR)
	}
	lastBeforeSwap := outL[nframes-1]

	// recompile with one additional, disconnected node.
	g2 := graph.New()
	osc2 := g2.AddNode("osc", 0)
	out2 := g2.AddNode("out", 0)
	extra := g2.AddNode("noise", 0)
	_ = extra
	g2.SetParam(osc2, "freq", 440.0)
	g2.Connect(osc2, "sig", out2, "ch1")

	prog2, cerr := graph.Compile(reg, g2, scenarioSampleRate, prog1, true)
	require.Nil(t, cerr)
	toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog2, PreservePreviousOutputs: true})

	e.Process(nframes, nil, nil, nil, outL, outR)
	firstAfterSwap := outL[0]

	maxStep := 2.0 * math.Pi * 440.0 / scenarioSampleRate // per-sample delta bound for a unit 440Hz sine
	assert.LessOrEqual(t, math.Abs(float64(firstAfterSwap-lastBeforeSwap)), maxStep+1e-3)
}

// S4: a modulation amount on an unconnected input must not move the
// output; once connected, it measurably changes it; removing it (amount 0)
// restores the original.
func TestScenarioModulationAmountRequiresConnection(t *testing.T) {
	reg := registryWithNodes()

	render := func(connect bool, amount float64) []float32 {
		g := graph.New()
		osc := g.AddNode("osc", 0)
		lfo := g.AddNode("lfo", 0)
		amp := g.AddNode("amp", 0)
		out := g.AddNode("out", 0)
		g.SetParam(osc, "freq", 440.0)
		g.SetParam(lfo, "rate", 5.0)
		g.SetParam(amp, "gain", 0.5)
		g.Connect(osc, "sig", amp, "sig")
		g.Connect(amp, "sig", out, "ch1")
		if connect {
			g.Connect(lfo, "sig", amp, "gain")
		}
		if amount != 0 {
			g.SetMod(amp, "gain", amount)
		}

		prog, cerr := graph.Compile(reg, g, scenarioSampleRate, nil, false)
		require.Nil(t, cerr)
		e, toExec, _ := newScenarioExecutor(reg)
		toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog})
		left, _ := renderSeconds(e, 0.5)
		return left
	}

	rms := func(s []float32) float64 {
		var sum float64
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		return math.Sqrt(sum / float64(len(s)))
	}

	unmodulated := render(false, 0)
	unconnectedWithAmount := render(false, 0.2)
	assert.InDelta(t, rms(unmodulated), rms(unconnectedWithAmount), 1e-4,
		"a modulation amount on an unconnected input must not move the output")

	connected := render(true, 0.2)
	assert.NotInDelta(t, rms(unmodulated), rms(connected), 1e-3,
		"connecting the modulation source must measurably change the output")

	removed := render(true, 0)
	assert.InDelta(t, rms(unmodulated), rms(removed), 1e-4,
		"zeroing the modulation amount must restore the unmodulated RMS")
}

// S6: an injected NoteOn must be observable on the editor-side return
// channel with its fields intact.
func TestScenarioMIDIInjectionObservability(t *testing.T) {
	reg := registryWithNodes()
	g := graph.New()
	env := g.AddNode("env", 0)
	out := g.AddNode("out", 0)
	g.Connect(env, "sig", out, "ch1")

	prog, cerr := graph.Compile(reg, g, scenarioSampleRate, nil, false)
	require.Nil(t, cerr)

	e, toExec, toEdit := newScenarioExecutor(reg)
	toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog})

	note := registry.MIDINote{On: true, Channel: 1, Note: 57, Velocity: 0.751}
	toExec.Push(handoff.ToExecutor{
		Kind:  handoff.InjectMIDI,
		Event: handoff.InjectedEvent{IsNote: true, Note: note},
	})

	const nframes = scenarioBlockSize
	outL := make([]float32, nframes)
	outR := make([]float32, nframes)
	e.Process(nframes, nil, nil, nil, outL, outR)

	var observed *handoff.InjectedEvent
	toEdit.Drain(func(msg handoff.ToEditor) {
		if msg.Kind == handoff.MidiObserved && msg.Event.IsNote {
			ev := msg.Event
			observed = &ev
		}
	})

	require.NotNil(t, observed)
	assert.Equal(t, note.Channel, observed.Note.Channel)
	assert.Equal(t, note.Note, observed.Note.Note)
	assert.InDelta(t, note.Velocity, observed.Note.Velocity, 1e-9)
	assert.True(t, observed.Note.On)
}

func registryWithNodes() *registry.Registry {
	reg := registry.New()
	nodes.Register(reg)
	return reg
}

func newScenarioExecutor(reg *registry.Registry) (*Executor, *handoff.EditorToExecutor, *handoff.ExecutorToEditor) {
	toExec := handoff.NewEditorToExecutor()
	toEdit := handoff.NewExecutorToEditor()
	e := New(reg, toExec, toEdit, scenarioSampleRate)
	return e, toExec, toEdit
}
