package nodes

import (
	"github.com/modulardsp/synthgraph/pkg/dsp"
	"github.com/modulardsp/synthgraph/pkg/dsp/delay"
	"github.com/modulardsp/synthgraph/pkg/dsp/distortion"
	"github.com/modulardsp/synthgraph/pkg/dsp/dynamics"
	"github.com/modulardsp/synthgraph/pkg/dsp/filter"
	"github.com/modulardsp/synthgraph/pkg/dsp/mix"
	"github.com/modulardsp/synthgraph/pkg/dsp/modulation"
	"github.com/modulardsp/synthgraph/pkg/dsp/reverb"
	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
)

// --- delay line -----------------------------------------------------------

const maxDelaySeconds = 2.0

type delayState struct {
	line *delay.Line
}

func delayDef() *registry.Def {
	return &registry.Def{
		Kind: "delay",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "time_ms", Default: 250, ModKind: registry.ModAdd},
			{Name: "mix", Default: 0.35, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &delayState{line: delay.New(maxDelaySeconds, sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*delayState)
			sig := a.Inputs[0]
			ms := a.Inputs[1]
			mixAmt := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				wet := s.line.ProcessMs(sig[i], float64(ms[i]))
				out[i] = mix.DryWet(sig[i], wet, mixAmt[i])
			}
		},
	}
}

// --- compressor -------------------------------------------------------------

type compState struct {
	comp *dynamics.Compressor
}

func compDef() *registry.Def {
	return &registry.Def{
		Kind: "comp",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "threshold_db", Default: -18, ModKind: registry.ModAdd},
			{Name: "ratio", Default: 4.0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &compState{comp: dynamics.NewCompressor(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*compState)
			sig := a.Inputs[0]
			thresh := a.Inputs[1]
			ratio := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.comp.SetThreshold(float64(thresh[i]))
				s.comp.SetRatio(float64(ratio[i]))
				out[i] = s.comp.Process(sig[i])
			}
			a.FB.Level = s.comp.GetGainReduction()
		},
	}
}

// --- tube drive -------------------------------------------------------------

type driveState struct {
	tube *distortion.TubeSaturator
}

func driveDef() *registry.Def {
	return &registry.Def{
		Kind: "drive",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "drive", Default: 0.3, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &driveState{tube: distortion.NewTubeSaturator(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*driveState)
			sig := a.Inputs[0]
			drv := a.Inputs[1]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.tube.SetDrive(float64(drv[i]))
				out[i] = float32(s.tube.Process(float64(sig[i])))
			}
		},
	}
}

// --- chorus -----------------------------------------------------------------

type chorusState struct {
	ch *modulation.Chorus
}

func chorusDef() *registry.Def {
	return &registry.Def{
		Kind: "chorus",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "rate", Default: 0.5, ModKind: registry.ModAdd},
			{Name: "depth", Default: 0.5, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "left"}, {Name: "right"}},
		Instantiate: func(sampleRate float64) any {
			return &chorusState{ch: modulation.NewChorus(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*chorusState)
			sig := a.Inputs[0]
			rate := a.Inputs[1]
			depth := a.Inputs[2]
			l, r := a.Outputs[0], a.Outputs[1]
			for _, n := range a.Ctx.Notes {
				if n.On {
					s.ch.Retrigger()
				}
			}
			for i := 0; i < a.NumFrames; i++ {
				s.ch.SetRate(float64(rate[i]))
				s.ch.SetDepth(float64(depth[i]) * 10.0)
				l[i], r[i] = s.ch.Process(sig[i])
			}
		},
	}
}

// --- tremolo ----------------------------------------------------------------

type tremoloState struct {
	tr *modulation.Tremolo
}

// --- expander ---------------------------------------------------------------

type expanderState struct {
	ex *dynamics.Expander
}

func expanderDef() *registry.Def {
	return &registry.Def{
		Kind: "expander",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "threshold_db", Default: -40, ModKind: registry.ModAdd},
			{Name: "ratio", Default: 2.0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &expanderState{ex: dynamics.NewExpander(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*expanderState)
			sig := a.Inputs[0]
			thresh := a.Inputs[1]
			ratio := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.ex.SetThreshold(float64(thresh[i]))
				s.ex.SetRatio(float64(ratio[i]))
				out[i] = s.ex.Process(sig[i])
			}
			a.FB.Level = s.ex.GetGainReduction()
		},
	}
}

// --- noise gate ---------------------------------------------------------

type gateState struct {
	g *dynamics.Gate
}

func gateDef() *registry.Def {
	return &registry.Def{
		Kind: "gate",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "threshold_db", Default: -50, ModKind: registry.ModAdd},
			{Name: "hysteresis_db", Default: 3.0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &gateState{g: dynamics.NewGate(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*gateState)
			sig := a.Inputs[0]
			thresh := a.Inputs[1]
			hyst := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.g.SetThreshold(float64(thresh[i]))
				s.g.SetHysteresis(float64(hyst[i]))
				out[i] = s.g.Process(sig[i])
			}
			a.FB.Level = s.g.GetGainReduction()
		},
	}
}

// --- brickwall limiter -------------------------------------------------------

type limiterState struct {
	lim *dynamics.Limiter
}

func limiterDef() *registry.Def {
	return &registry.Def{
		Kind: "limiter",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "threshold_db", Default: -1.0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &limiterState{lim: dynamics.NewLimiter(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*limiterState)
			sig := a.Inputs[0]
			thresh := a.Inputs[1]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.lim.SetThreshold(float64(thresh[i]))
				out[i] = s.lim.Process(sig[i])
			}
			a.FB.Level = s.lim.GetGainReduction()
		},
	}
}

// --- bit crusher --------------------------------------------------------

type bitcrushState struct {
	bc *distortion.BitCrusher
}

func bitcrushDef() *registry.Def {
	return &registry.Def{
		Kind: "bitcrush",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "bits", Default: 8, ModKind: registry.ModAdd},
			{Name: "rate_ratio", Default: 0.5, ModKind: registry.ModScale},
			{Name: "mix", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &bitcrushState{bc: distortion.NewBitCrusher(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*bitcrushState)
			sig := a.Inputs[0]
			bits := a.Inputs[1]
			ratio := a.Inputs[2]
			mixAmt := a.Inputs[3]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.bc.SetBitDepth(int(bits[i]))
				s.bc.SetSampleRateRatio(float64(ratio[i]))
				s.bc.SetMix(float64(mixAmt[i]))
				out[i] = float32(s.bc.Process(float64(sig[i])))
			}
		},
	}
}

// --- tape saturation ----------------------------------------------------

type tapeState struct {
	t *distortion.TapeSaturation
}

func tapeDef() *registry.Def {
	return &registry.Def{
		Kind: "tape",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "saturation", Default: 0.5, ModKind: registry.ModScale},
			{Name: "mix", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &tapeState{t: distortion.NewTapeSaturation(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*tapeState)
			sig := a.Inputs[0]
			sat := a.Inputs[1]
			mixAmt := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.t.SetSaturation(float64(sat[i]))
				s.t.SetMix(float64(mixAmt[i]))
				out[i] = float32(s.t.Process(float64(sig[i])))
			}
		},
	}
}

// --- waveshaper -----------------------------------------------------------

type waveshapeState struct {
	w *distortion.Waveshaper
}

func waveshapeDef() *registry.Def {
	return &registry.Def{
		Kind: "waveshape",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "drive", Default: 1.0, ModKind: registry.ModScale},
			{Name: "mix", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Atoms: []registry.AtomPort{
			{Name: "curve", Kind: portbuf.AtomInt, Default: portbuf.NewIntAtom(int64(distortion.CurveSoftClip))},
		},
		Instantiate: func(sampleRate float64) any {
			return &waveshapeState{w: distortion.NewWaveshaper(distortion.CurveSoftClip)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*waveshapeState)
			sig := a.Inputs[0]
			drive := a.Inputs[1]
			mixAmt := a.Inputs[2]
			out := a.Outputs[0]
			s.w.SetCurveType(distortion.CurveType(a.Atoms[0].Int))
			for i := 0; i < a.NumFrames; i++ {
				s.w.SetDrive(float64(drive[i]))
				s.w.SetMix(float64(mixAmt[i]))
				out[i] = float32(s.w.Process(float64(sig[i])))
			}
		},
	}
}

// --- flanger --------------------------------------------------------------

type flangerState struct {
	f *modulation.Flanger
}

func flangerDef() *registry.Def {
	return &registry.Def{
		Kind: "flanger",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "rate", Default: 0.2, ModKind: registry.ModAdd},
			{Name: "depth_ms", Default: 2.0, ModKind: registry.ModAdd},
			{Name: "feedback", Default: 0.3, ModKind: registry.ModScale},
			{Name: "mix", Default: 0.5, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &flangerState{f: modulation.NewFlanger(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*flangerState)
			sig := a.Inputs[0]
			rate := a.Inputs[1]
			depth := a.Inputs[2]
			fb := a.Inputs[3]
			mixAmt := a.Inputs[4]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.f.SetRate(float64(rate[i]))
				s.f.SetDepth(float64(depth[i]))
				s.f.SetFeedback(float64(fb[i]))
				s.f.SetMix(float64(mixAmt[i]))
				out[i] = s.f.Process(sig[i])
			}
		},
	}
}

// --- phaser ---------------------------------------------------------------

type phaserState struct {
	p *modulation.Phaser
}

func phaserDef() *registry.Def {
	return &registry.Def{
		Kind: "phaser",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "rate", Default: 0.5, ModKind: registry.ModAdd},
			{Name: "depth", Default: 0.7, ModKind: registry.ModScale},
			{Name: "feedback", Default: 0.4, ModKind: registry.ModScale},
			{Name: "mix", Default: 0.5, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &phaserState{p: modulation.NewPhaser(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*phaserState)
			sig := a.Inputs[0]
			rate := a.Inputs[1]
			depth := a.Inputs[2]
			fb := a.Inputs[3]
			mixAmt := a.Inputs[4]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.p.SetRate(float64(rate[i]))
				s.p.SetDepth(float64(depth[i]))
				s.p.SetFeedback(float64(fb[i]))
				s.p.SetMix(float64(mixAmt[i]))
				out[i] = s.p.Process(sig[i])
			}
		},
	}
}

// --- ring modulator ---------------------------------------------------------

type ringmodState struct {
	rm *modulation.RingModulator
}

func ringmodDef() *registry.Def {
	return &registry.Def{
		Kind: "ringmod",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "carrier_hz", Default: 200.0, ModKind: registry.ModAdd},
			{Name: "mix", Default: 1.0, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &ringmodState{rm: modulation.NewRingModulator(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*ringmodState)
			sig := a.Inputs[0]
			carrier := a.Inputs[1]
			mixAmt := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.rm.SetFrequency(float64(carrier[i]))
				s.rm.SetMix(float64(mixAmt[i]))
				out[i] = s.rm.Process(sig[i])
			}
		},
	}
}

// --- parametric EQ (biquad) -------------------------------------------------

type eqState struct {
	bq    *filter.Biquad
	buf   [1]float32
	slice []float32
}

func eqDef() *registry.Def {
	return &registry.Def{
		Kind: "eq",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "freq", Default: 1000.0, ModKind: registry.ModAdd},
			{Name: "q", Default: dsp.DefaultQ, ModKind: registry.ModAdd},
			{Name: "gain_db", Default: 0, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			s := &eqState{bq: filter.NewBiquad(1)}
			s.slice = s.buf[:]
			return s
		},
		Process: func(a *registry.Args) {
			s := a.State.(*eqState)
			sig := a.Inputs[0]
			freq := a.Inputs[1]
			q := a.Inputs[2]
			gainDB := a.Inputs[3]
			out := a.Outputs[0]
			// Recomputing the trig-heavy coefficient design every sample
			// would be wasteful for a block-rate control like freq/q/gain;
			// one recompute per block matches how this filter is meant
			// to be driven.
			s.bq.SetPeakingEQ(a.SampleRate, float64(freq[0]), float64(q[0]), float64(gainDB[0]))
			for i := 0; i < a.NumFrames; i++ {
				s.slice[0] = sig[i]
				s.bq.Process(s.slice, 0)
				out[i] = s.slice[0]
			}
		},
	}
}

// --- equal-power crossfade -----------------------------------------------

func xfadeDef() *registry.Def {
	return &registry.Def{
		Kind: "xfade",
		Inputs: []registry.InputPort{
			{Name: "a", Default: 0, ModKind: registry.ModAdd},
			{Name: "b", Default: 0, ModKind: registry.ModAdd},
			{Name: "position", Default: 0.5, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Process: func(a *registry.Args) {
			sigA := a.Inputs[0]
			sigB := a.Inputs[1]
			pos := a.Inputs[2]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				out[i] = mix.CrossfadeCosine(sigA[i], sigB[i], pos[i])
			}
		},
	}
}

// --- FDN reverb (second reverb algorithm) -----------------------------------

type fdnReverbState struct {
	fdn *reverb.FDN
}

func fdnReverbDef() *registry.Def {
	return &registry.Def{
		Kind: "reverb2",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "mix", Default: 0.3, ModKind: registry.ModScale},
			{Name: "decay", Default: 0.5, ModKind: registry.ModAdd},
			{Name: "damping", Default: 0.5, ModKind: registry.ModAdd},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &fdnReverbState{fdn: reverb.NewFDN(4, sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*fdnReverbState)
			sig := a.Inputs[0]
			mixAmt := a.Inputs[1]
			decay := a.Inputs[2]
			damping := a.Inputs[3]
			out := a.Outputs[0]
			for i := 0; i < a.NumFrames; i++ {
				s.fdn.SetWetLevel(float64(mixAmt[i]))
				s.fdn.SetDryLevel(1 - float64(mixAmt[i]))
				s.fdn.SetDecay(float64(decay[i]))
				s.fdn.SetDamping(float64(damping[i]))
				out[i] = s.fdn.Process(sig[i])
			}
		},
	}
}

func tremoloDef() *registry.Def {
	return &registry.Def{
		Kind: "tremolo",
		Inputs: []registry.InputPort{
			{Name: "sig", Default: 0, ModKind: registry.ModAdd},
			{Name: "rate", Default: 5.0, ModKind: registry.ModAdd},
			{Name: "depth", Default: 0.5, ModKind: registry.ModScale},
		},
		Outputs: []registry.OutputPort{{Name: "sig"}},
		Instantiate: func(sampleRate float64) any {
			return &tremoloState{tr: modulation.NewTremolo(sampleRate)}
		},
		Process: func(a *registry.Args) {
			s := a.State.(*tremoloState)
			sig := a.Inputs[0]
			rate := a.Inputs[1]
			depth := a.Inputs[2]
			out := a.Outputs[0]
			for _, n := range a.Ctx.Notes {
				if n.On {
					s.tr.Retrigger()
				}
			}
			for i := 0; i < a.NumFrames; i++ {
				s.tr.SetRate(float64(rate[i]))
				s.tr.SetDepth(float64(depth[i]))
				out[i] = s.tr.Process(sig[i])
			}
		},
	}
}
