// Package nodes is the built-in node library: concrete node kinds
// registered with a registry.Registry, each a thin process function
// wrapping one of the pkg/dsp algorithms. None of this package is part
// of the core contract (spec.md §1 excludes individual DSP algorithms);
// it exists so the core has something real to compile and execute.
package nodes

import (
	"github.com/modulardsp/synthgraph/pkg/dsp/envelope"
	"github.com/modulardsp/synthgraph/pkg/dsp/filter"
	"github.com/modulardsp/synthgraph/pkg/dsp/gain"
	"github.com/modulardsp/synthgraph/pkg/dsp/interpolation"
	"github.com/modulardsp/synthgraph/pkg/dsp/modulation"
	"github.com/modulardsp/synthgraph/pkg/dsp/oscillator"
	"github.com/modulardsp/synthgraph/pkg/dsp/pan"
	"github.com/modulardsp/synthgraph/pkg/dsp/reverb"
	"github.com/modulardsp/synthgraph/pkg/dsp/utility"
	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// Register adds every built-in node kind to reg.
func Register(reg *registry.Registry) {
	reg.Register(oscillatorDef())
	reg.Register(filterDef())
	reg.Register(envelopeDef())
	reg.Register(arEnvDef())
	reg.Register(envFollowDef())
	reg.Register(ampDef())
	reg.Register(mix4Def())
	reg.Register(samplerDef())
	reg.Register(lfoDef())
	reg.Register(reverbDef())
	reg.Register(gainDef())
	reg.Register(panDef())
	reg.Register(autopanDef())
	reg.Register(dcBlockDef())
	reg.Register(noiseDef())
	reg.Register(inputDef())
	reg.Register(outDef())
	reg.Register(delayDef())
	reg.Register(compDef())
	reg.Register(driveDef())
	reg.Register(chorusDef())
	reg.Register(tremoloDef())
	reg.Register(expanderDef())
	reg.Register(gateDef())
	reg.Register(limiterDef())
	reg.Register(bitcrushDef())
	reg.Register(tapeDef())
	reg.Register(waveshapeDef())
	reg.Register(flangerDef())
	reg.Register(phaserDef())
	reg.Register(ringmodDef())
	reg.Register(eqDef())
	reg.Register(fdnReverbDef())
	reg.Register(xfadeDef())
}

// --- oscillator --------------------------------------------------------

type oscState struct {
	osc  *oscillator.Oscillator
	wave int64
}

func oscillatorDef() *registry.Def {
	return &registry.Def{
		Kind: "osc",
		Inputs: []registry.InputPort{
			{Name: "freq", Default: 440.0, ModKind: registry.ModAdd},
			{Name: "pw", Default: 0.5, ModKind: registry.ModAdd},
			{Name: "sync", Default: 0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Atoms: []registry.AtomPort{
			{Name: "wave", Kind: portbuf.AtomInt, Default: portbuf.NewIntAtom(0)},
		},
		Instantiate: func(sampleRate float64) any {
			return &oscState{osc: oscillator.New(sampleRate)}
		},
		// Oscillator.New bakes sampleRate into phaseInc with no public
		// setter for sampleRate alone; rebuild it and let the next block
		// re-apply frequency (phase continuity is not preserved across
		// a rate change, only across ordinary program swaps).
		SetRate: func(state any, sampleRate float64) {
			s := state.(*oscState)
			s.osc = oscillator.New(sampleRate)
		},
		Process: func(a *registry.Args) {
			s := a.State.(*oscState)
			s.wave = a.Atoms[0].Int
			freq := a.Inputs[0]
			pw := a.Inputs[1]
			sync := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.osc.SetFrequency(float64(freq[i]))
				s.osc.SyncPhase(float64(sync[i]))
				switch s.wave {
				case 1:
					out[i] = s.osc.Saw()
				case 2:
					out[i] = s.osc.Square()
				case 3:
					out[i] = s.osc.Triangle()
				case 4:
					out[i] = s.osc.Pulse(float64(pw[i]))
				default:
					out[i] = s.osc.Sine()
				}
			}
			a.FB.Phase = 0
			if a.NumFrames > 0 {
				a.FB.Level = float64(out[a.NumFrames-1])
			}
		},
	}
}

// --- state-variable filter ---------------------------------------------

type filterState struct {
	svf *filter.MultiModeSVF
}

func filterDef() *registry.Def {
	return &registry.Def{
		Kind: "filter",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "cutoff", Default: 1000, ModKind: registry.ModAdd},
			{Name: "resonance", Default: 0.2, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Atoms: []registry.AtomPort{
			{Name: "mode", Kind: portbuf.AtomInt, Default: portbuf.NewIntAtom(0)},
		},
		Instantiate: func(sampleRate float64) any {
			return &filterState{svf: filter.NewMultiModeSVF(1)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*filterState)
			sig := a.Inputs[0]
			cutoff := a.Inputs[1]
			res := a.Inputs[2]
			out := a.Outputs[0]
			mode := float64(a.Atoms[0].Int)
			s.svf.SetMode(mode)
			for i := 0; i < a.NumFrames; i++ {
				s.svf.SetFrequencyAndQ(a.SampleRate, float64(cutoff[i]), 1.0+float64(res[i])*9.0)
				tmp := [1]float32{sig[i]}
				s.svf.Process(tmp[:], 0)
				out[i] = tmp[0]
			}
		},
	}
}

// --- ADSR envelope -------------------------------------------------------

type envState struct {
	env    *envelope.ADSR
	gateOn bool
}

func envelopeDef() *registry.Def {
	return &registry.Def{
		Kind: "env",
		Inputs: []registry.InputPort{
			{Name: "attack", Default: 0.01, ModKind: registry.ModAdd},
			{Name: "decay", Default: 0.1, ModKind: registry.ModAdd},
			{Name: "sustain", Default: 0.7, ModKind: registry.ModAdd},
			{Name: "release", Default: 0.3, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &envState{env: envelope.New(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*envState)
			s.env.SetADSR(
				float64(a.Inputs[0][0]),
				float64(a.Inputs[1][0]),
				float64(a.Inputs[2][0]),
				float64(a.Inputs[3][0]),
			)
			for _, n := range a.Ctx.Notes {
				if n.On && !s.gateOn {
					s.env.Trigger()
					s.gateOn = true
				} else if !n.On && s.gateOn {
					s.env.Release()
					s.gateOn = false
				}
			}
			s.env.Process(a.Outputs[0][:a.NumFrames])
		},
	}
}

// --- AR envelope -----------------------------------------------------------

type arEnvState struct {
	env    *envelope.AR
	gateOn bool
}

// arEnvDef wraps the teacher's simpler two-stage envelope, never
// constructed anywhere before this: a plucked/percussive counterpart
// to env's full ADSR, with no sustain stage to hold.
func arEnvDef() *registry.Def {
	return &registry.Def{
		Kind: "arenv",
		Inputs: []registry.InputPort{
			{Name: "attack", Default: 0.01, ModKind: registry.ModAdd},
			{Name: "release", Default: 0.1, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &arEnvState{env: envelope.NewAR(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*arEnvState)
			s.env.SetAttack(float64(a.Inputs[0][0]))
			s.env.SetRelease(float64(a.Inputs[1][0]))
			for _, n := range a.Ctx.Notes {
				if n.On && !s.gateOn {
					s.env.Trigger()
					s.gateOn = true
				} else if !n.On && s.gateOn {
					s.env.Release()
					s.gateOn = false
				}
			}
			s.env.Process(a.Outputs[0][:a.NumFrames])
		},
	}
}

// --- envelope follower -------------------------------------------------------

type envFollowState struct {
	f *envelope.Follower
}

// envFollowDef wraps the teacher's envelope follower: tracks the
// amplitude of an arbitrary signal rather than generating one from a
// gate, useful for sidechain-style modulation sources.
func envFollowDef() *registry.Def {
	return &registry.Def{
		Kind: "envfollow",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "attack", Default: 0.01, ModKind: registry.ModAdd},
			{Name: "release", Default: 0.1, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &envFollowState{f: envelope.NewFollower(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*envFollowState)
			sig := a.Inputs[0]
			out := a.Outputs[0]
			s.f.SetAttack(float64(a.Inputs[1][0]))
			s.f.SetRelease(float64(a.Inputs[2][0]))
			for i := 0; i < a.NumFrames; i++ {
				out[i] = s.f.Follow(sig[i])
			}
		},
	}
}

// --- amplifier / VCA ------------------------------------------------------

func ampDef() *registry.Def {
	return &registry.Def{
		Kind: "amp",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "gain", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Process: func(a *registry.Args) {
			sig := a.Inputs[0]
			g := a.Inputs[1]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				out[i] = gain.Apply(sig[i], g[i])
			}
		},
	}
}

// --- 4-input mixer ----------------------------------------------------

func mix4Def() *registry.Def {
	return &registry.Def{
		Kind: "mix4",
		Inputs: []registry.InputPort{
			{Name: "in1", Default: 0, ModKind: registry.ModAdd},
			{Name: "in2", Default: 0, ModKind: registry.ModAdd},
			{Name: "in3", Default: 0, ModKind: registry.ModAdd},
			{Name: "in4", Default: 0, ModKind: registry.ModAdd},
			{Name: "level1", Default: 1.0, ModKind: registry.ModScale},
			{Name: "level2", Default: 1.0, ModKind: registry.ModScale},
			{Name: "level3", Default: 1.0, ModKind: registry.ModScale},
			{Name: "level4", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Process: func(a *registry.Args) {
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				out[i] = a.Inputs[0][i]*a.Inputs[4][i] +
					a.Inputs[1][i]*a.Inputs[5][i] +
					a.Inputs[2][i]*a.Inputs[6][i] +
					a.Inputs[3][i]*a.Inputs[7][i]
			}
		},
	}
}

// --- sampler stub -------------------------------------------------------

type samplerState struct {
	pos float64
}

func samplerDef() *registry.Def {
	return &registry.Def{
		Kind: "sampler",
		Inputs: []registry.InputPort{
			{Name: "rate", Default: 1.0, ModKind: registry.ModScale},
			{Name: "start", Default: 0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Atoms: []registry.AtomPort{
			{Name: "sample", Kind: portbuf.AtomSampleRef, Default: portbuf.Atom{Kind: portbuf.AtomSampleRef}},
		},
		Instantiate: func(sampleRate float64) any { return &samplerState{} },
		// Playback is a node implementation detail; loading sample
		// bytes from disk into the atom is out of scope (spec.md §1,
		// Non-goals). This node only ever reads an already-populated
		// handle, emitting silence until one arrives.
		Process: func(a *registry.Args) {
			s := a.State.(*samplerState)
			out := a.Outputs[0]
			ref := a.Atoms[0].Sample
			if ref == nil || ref.Buffer == nil || len(ref.Buffer.Data) == 0 {
				for i := range out[:a.NumFrames] {
					out[i] = 0
				}
				return
			}
			data := ref.Buffer.Data
			rate := a.Inputs[0]
			for i := 0; i < a.NumFrames; i++ {
				idx := int(s.pos)
				if idx >= len(data) {
					out[i] = 0
					continue
				}
				frac := float32(s.pos - float64(idx))
				y0 := float32(data[idx])
				y1 := y0
				if idx+1 < len(data) {
					y1 = float32(data[idx+1])
				}
				out[i] = interpolation.Linear(y0, y1, frac)
				s.pos += float64(rate[i])
				if s.pos < 0 {
					s.pos = 0
				}
			}
		},
	}
}

// --- LFO / sequencer ------------------------------------------------------

type lfoState struct {
	lfo *modulation.LFO
}

func lfoDef() *registry.Def {
	return &registry.Def{
		Kind: "lfo",
		Inputs: []registry.InputPort{
			{Name: "rate", Default: 2.0, ModKind: registry.ModAdd},
			{Name: "depth", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			l := modulation.NewLFO(sampleRate)
			l.SetWaveform(modulation.WaveformSine)
			l.EnableSync(true, 0)
			return &lfoState{lfo: l}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*lfoState)
			out := a.Outputs[0]
			rate := a.Inputs[0]
			depth := a.Inputs[1]
			// Retrigger on every note-on so each new voice gate starts
			// its vibrato/tremolo sweep from the same phase, matching
			// the block-granular (not sample-accurate) note handling
			// the envelope node already uses.
			for _, n := range a.Ctx.Notes {
				if n.On {
					s.lfo.Sync()
				}
			}
			for i := 0; i < a.NumFrames; i++ {
				s.lfo.SetFrequency(float64(rate[i]))
				s.lfo.SetDepth(float64(depth[i]))
				out[i] = float32(s.lfo.Process())
			}
		},
	}
}

// --- reverb -------------------------------------------------------------

type reverbState struct {
	rv *reverb.Freeverb
}

func reverbDef() *registry.Def {
	return &registry.Def{
		Kind: "reverb",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "mix", Default: 0.3, ModKind: registry.ModScale},
			{Name: "decay", Default: 0.5, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &reverbState{rv: reverb.NewFreeverb(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*reverbState)
			sig := a.Inputs[0]
			mixAmt := a.Inputs[1]
			decay := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.rv.SetWetLevel(float64(mixAmt[i]))
				s.rv.SetRoomSize(float64(decay[i]))
				out[i] = s.rv.Process(sig[i])
			}
		},
	}
}

// --- utility: gain / pan / dc-block / noise ------------------------------

func gainDef() *registry.Def {
	return &registry.Def{
		Kind: "gain",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "db", Default: 0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Process: func(a *registry.Args) {
			sig, db, out := a.Inputs[0], a.Inputs[1], a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				out[i] = gain.ApplyDb(sig[i], db[i])
			}
		},
	}
}

type autoPanState struct {
	ap *pan.AutoPan
}

// autopanDef wraps the teacher's AutoPan, which modulates pan position with
// its own internal LFO rather than taking a pan value as a per-sample input
// like pan does. Rate and depth are block-rate controls, matching
// AutoPan.Process's whole-buffer signature.
func autopanDef() *registry.Def {
	return &registry.Def{
		Kind: "autopan",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "rate", Default: 1.0, ModKind: registry.ModAdd},
			{Name: "depth", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "left"}, {Name: "right"}},
		Instantiate: func(sampleRate float64) any {
			return &autoPanState{ap: pan.NewAutoPan(1.0, 1.0, pan.ConstantPower)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*autoPanState)
			sig := a.Inputs[0]
			rate := a.Inputs[1]
			depth := a.Inputs[2]
			s.ap.SetRate(rate[0])
			s.ap.SetDepth(depth[0])
			l, r := a.Outputs[0], a.Outputs[1]
			s.ap.Process(sig[:a.NumFrames], float32(a.SampleRate), l[:a.NumFrames], r[:a.NumFrames])
		},
	}
}

func panDef() *registry.Def {
	return &registry.Def{
		Kind: "pan",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "pan", Default: 0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "left"}, {Name: "right"}},
		Process: func(a *registry.Args) {
			sig := a.Inputs[0]
			panAmt := a.Inputs[1]
			l, r := a.Outputs[0], a.Outputs[1]
			for i := 0; i < a.NumFrames; i++ {
				left, right := pan.MonoToStereo(panAmt[i], pan.ConstantPower)
				l[i] = sig[i] * left
				r[i] = sig[i] * right
			}
		},
	}
}

type dcBlockState struct {
	dc *utility.SimpleDCBlocker
}

func dcBlockDef() *registry.Def {
	return &registry.Def{
		Kind:    "dcblock",
		Inputs:  []registry.InputPort{{Name: "sig", Default: 0, ModKind: registry.ModAdd}},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &dcBlockState{dc: utility.NewSimpleDCBlocker(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*dcBlockState)
			copy(a.Outputs[0][:a.NumFrames], a.Inputs[0][:a.NumFrames])
			s.dc.ProcessBuffer(a.Outputs[0][:a.NumFrames])
		},
	}
}

type noiseState struct {
	gen *utility.NoiseGenerator
}

func noiseDef() *registry.Def {
	return &registry.Def{
		Kind:    "noise",
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &noiseState{gen: utility.NewNoiseGenerator(utility.WhiteNoise)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*noiseState)
			s.gen.Generate(a.Outputs[0][:a.NumFrames])
		},
	}
}

// --- host input / output bus --------------------------------------------

func inputDef() *registry.Def {
	return &registry.Def{
		Kind:    "input",
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Atoms: []registry.AtomPort{
			{Name: "channel", Kind: portbuf.AtomInt, Default: portbuf.NewIntAtom(0)},
		},
		Process: func(a *registry.Args) {
			out := a.Outputs[0]
			ch := int(a.Atoms[0].Int)
			if a.Ctx.HostInputs == nil || ch < 0 || ch >= len(a.Ctx.HostInputs) {
				for i := range out[:a.NumFrames] {
					out[i] = 0
				}
				return
			}
			src := a.Ctx.HostInputs[ch]
			n := a.NumFrames
			if len(src) < n {
				n = len(src)
			}
			copy(out[:n], src[:n])
			for i := n; i < a.NumFrames; i++ {
				out[i] = 0
			}
		},
	}
}

func outDef() *registry.Def {
	return &registry.Def{
		Kind: "out",
		Inputs: []registry.InputPort{
			{Name: "ch1", Default: 0, ModKind: registry.ModAdd},
			{Name: "ch2", Default: 0, ModKind: registry.ModAdd},
		},
		// the executor reads this operation's input slots directly to
		// form the host's stereo output; Process has nothing to do.
		Process: func(a *registry.Args) {},
	}
}
