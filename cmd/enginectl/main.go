// Command enginectl is a headless demo driver: it builds a small graph,
// compiles it, and drives the executor in a loop standing in for the
// host audio callback, printing feedback and monitor snapshots. It is
// not a real-time audio driver; it exists to exercise the engine
// end-to-end from the command line.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/pflag"

	"github.com/modulardsp/synthgraph/pkg/engineconfig"
	"github.com/modulardsp/synthgraph/pkg/framework/executor"
	"github.com/modulardsp/synthgraph/pkg/framework/graph"
	"github.com/modulardsp/synthgraph/pkg/framework/handoff"
	"github.com/modulardsp/synthgraph/pkg/framework/portbuf"
	"github.com/modulardsp/synthgraph/pkg/framework/program"
	"github.com/modulardsp/synthgraph/pkg/framework/registry"
	"github.com/modulardsp/synthgraph/pkg/nodes"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "YAML engine configuration file (optional, defaults used if absent)")
		sampleRate = pflag.Float64("sample-rate", 0, "override the configured sample rate")
		blocks     = pflag.IntP("blocks", "b", 20, "number of blocks to render before exiting")
		freq       = pflag.Float64P("freq", "f", 220.0, "oscillator frequency in Hz")
		help       = pflag.Bool("help", false, "display help text")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: enginectl [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := engineconfig.Default()
	if *configPath != "" {
		loaded, err := engineconfig.Load(*configPath)
		if err != nil {
			logger.Error("failed to load configuration", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	logger.Info("engine configuration",
		"sample_rate", cfg.SampleRate,
		"max_block_size", cfg.MaxBlockSize,
		"smoother_count", cfg.SmootherCount,
		"handoff_capacity", cfg.HandoffCapacity,
		"monitor_slots", cfg.MonitorSlots,
	)

	reg := registry.New()
	nodes.Register(reg)

	g := graph.New()
	osc := g.AddNode("osc", 0)
	amp := g.AddNode("amp", 0)
	lfo := g.AddNode("lfo", 0)
	smp := g.AddNode("sampler", 0)
	out := g.AddNode("out", 0)

	g.SetParam(osc, "freq", *freq)
	g.SetParam(amp, "gain", 0.5)
	g.SetParam(lfo, "rate", 4.0)
	g.SetParam(lfo, "depth", 0.3)

	g.Connect(osc, "sig", amp, "sig")
	g.Connect(amp, "sig", out, "ch1")
	g.Connect(amp, "sig", out, "ch2")
	g.Connect(lfo, "sig", amp, "gain")
	g.SetMod(amp, "gain", 1.0)

	firstSample := portbuf.NewSampleAtom(sineSample(cfg.SampleRate, *freq))
	g.SetAtom(smp, "sample", firstSample)

	prog, cerr := graph.Compile(reg, g, cfg.SampleRate, nil, false)
	if cerr != nil {
		logger.Error("compile failed", "kind", cerr.Kind, "msg", cerr.Msg)
		os.Exit(1)
	}

	toExec := handoff.NewEditorToExecutor()
	toEdit := handoff.NewExecutorToEditor()
	exec := executor.New(reg, toExec, toEdit, cfg.SampleRate)

	toExec.Push(handoff.ToExecutor{Kind: handoff.NewProgram, Program: prog, PreservePreviousOutputs: false})

	const nframes = portbuf.MaxBlock
	outL := make([]float32, nframes)
	outR := make([]float32, nframes)

	smpOp := prog.FindOperation(programInstanceKey(smp))
	swapped := false

	for i := 0; i < *blocks; i++ {
		exec.Process(nframes, nil, nil, nil, outL, outR)

		// half way through, swap in a second sample to exercise the
		// atom refcounting contract: the executor's AtomUpdate handler
		// adds a reference on install and releases the old one on
		// replacement, but only the editor acts once a DropAtom message
		// shows the count has fallen back to its own original owner.
		if !swapped && i == *blocks/2 && smpOp != nil {
			swapped = true
			next := portbuf.NewSampleAtom(sineSample(cfg.SampleRate, *freq*1.5))
			toExec.Push(handoff.ToExecutor{Kind: handoff.AtomUpdate, AtomSlot: smpOp.AtomStart, NewAtom: next})
		}

		toEdit.Drain(func(msg handoff.ToEditor) {
			switch msg.Kind {
			case handoff.DropAtom:
				if msg.Atom.Kind == portbuf.AtomSampleRef && msg.Atom.Sample != nil {
					if remaining := msg.Atom.Release(); remaining <= 0 {
						logger.Info("sample released, no owners remain", "refs", remaining)
					}
				}
			default:
				logger.Debug("executor observation", "kind", msg.Kind)
			}
		})

		var peakL, peakR float32
		for j := 0; j < nframes; j++ {
			if outL[j] > peakL {
				peakL = outL[j]
			}
			if outR[j] > peakR {
				peakR = outR[j]
			}
		}
		logger.Info("block rendered", "i", i, "peak_l", peakL, "peak_r", peakR)
		time.Sleep(time.Millisecond)
	}
}

// sineSample synthesizes a one-second sine buffer so the demo never depends
// on loading bytes from disk, which is out of scope for the sampler node.
func sineSample(sampleRate, freq float64) *audio.FloatBuffer {
	n := int(sampleRate)
	data := make([]float64, n)
	for i := range data {
		data[i] = 0.5 * sineAt(freq, sampleRate, i)
	}
	return &audio.FloatBuffer{Data: data}
}

func sineAt(freq, sampleRate float64, i int) float64 {
	return math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
}

func programInstanceKey(n graph.NodeID) program.InstanceKey {
	return program.InstanceKey{Kind: n.Kind, Instance: n.Instance}
}
