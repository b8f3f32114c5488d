package executor

// maxSmoothers bounds the number of parameter ramps active at once. A
// linear scan over this small fixed array replaces any dynamic
// container on the audio thread.
const maxSmoothers = 128

// defaultRampSeconds is the default linear smoothing time applied to a
// ParamUpdate.
const defaultRampSeconds = 0.010

type smootherStage uint8

const (
	stageIdle smootherStage = iota
	stageRamping
)

// smoother is one linear ramp from an old value to a new value, targeting
// a single program input slot. Idle → Ramping on retarget; Ramping → Idle
// at the end of the ramp; a retarget during Ramping does not leave
// Ramping.
type smoother struct {
	stage     smootherStage
	slot      int
	current   float64
	target    float64
	step      float64
	remaining int
}

// smootherPool is the executor's fixed pool of smoothers, one entry per
// concurrently-ramping parameter slot.
type smootherPool struct {
	items      [maxSmoothers]smoother
	sampleRate float64
}

func newSmootherPool(sampleRate float64) *smootherPool {
	p := &smootherPool{sampleRate: sampleRate}
	for i := range p.items {
		p.items[i].slot = -1
	}
	return p
}

func (p *smootherPool) setSampleRate(rate float64) { p.sampleRate = rate }

// retarget starts or retargets the ramp for slot towards target,
// resuming from current if the slot is not already ramping. Applying the
// same retarget twice within a block is idempotent: the second call
// finds the already-ramping smoother for slot and sets the identical
// step/remaining, producing the same per-sample ramp as the first.
func (p *smootherPool) retarget(slot int, current, target float64) {
	rampSamples := int(p.sampleRate * defaultRampSeconds)
	if rampSamples < 1 {
		rampSamples = 1
	}

	for i := range p.items {
		if p.items[i].stage == stageRamping && p.items[i].slot == slot {
			p.items[i].target = target
			p.items[i].step = (target - p.items[i].current) / float64(rampSamples)
			p.items[i].remaining = rampSamples
			return
		}
	}
	for i := range p.items {
		if p.items[i].stage == stageIdle {
			p.items[i].stage = stageRamping
			p.items[i].slot = slot
			p.items[i].current = current
			p.items[i].target = target
			p.items[i].step = (target - current) / float64(rampSamples)
			p.items[i].remaining = rampSamples
			return
		}
	}
	// pool exhausted: drop the retarget, the slot keeps its last value.
}

// advance runs every active smoother across nframes, writing its ramp
// into dst (the program's input buffer for that slot) and updating
// paramScalar with the terminal value for the block.
func (p *smootherPool) advance(nframes int, inputAt func(slot int) []float32, paramScalar []float64) {
	for i := range p.items {
		s := &p.items[i]
		if s.stage != stageRamping {
			continue
		}
		buf := inputAt(s.slot)
		for f := 0; f < nframes && f < len(buf); f++ {
			if s.remaining > 0 {
				s.current += s.step
				s.remaining--
			} else {
				s.current = s.target
			}
			buf[f] = float32(s.current)
		}
		paramScalar[s.slot] = s.current
		if s.remaining == 0 {
			s.stage = stageIdle
			s.slot = -1
		}
	}
}

// fillFlat writes the constant current value into every unconnected,
// non-ramping input slot's buffer so process functions always see a
// fully-populated block.
func fillFlat(buf []float32, value float64) {
	v := float32(value)
	for i := range buf {
		buf[i] = v
	}
}

func (p *smootherPool) isRamping(slot int) bool {
	for i := range p.items {
		if p.items[i].stage == stageRamping && p.items[i].slot == slot {
			return true
		}
	}
	return false
}
