package nco

import (
	"math"
)

// NCO is a numerically-controlled oscillator: a phase accumulator over
// a normalized frequency (Nyquist == 1.0). Each Read advances it one
// sample.
type NCO struct {
	phase          float64
	phaseIncrement float64
}

// New returns an oscillator at the given normalized frequency.
func New(freq float64) *NCO {
	n := &NCO{}
	n.Init(freq)
	return n
}

// Init resets the oscillator to phase zero at the given normalized
// frequency.
func (n *NCO) Init(freq float64) {
	n.phase = 0
	n.SetFreq(freq)
}

// SetFreq changes the oscillator frequency (normalized) without
// disturbing the current phase.
func (n *NCO) SetFreq(freq float64) {
	n.phaseIncrement = math.Pi * freq
}

// SetPhase forces the accumulator to the given angle in radians.
func (n *NCO) SetPhase(phase float64) {
	n.phase = phase
}

func (n *NCO) advance() {
	n.phase += n.phaseIncrement
	if n.phase > 2*math.Pi {
		n.phase -= 2 * math.Pi
	} else if n.phase < -2*math.Pi {
		n.phase += 2 * math.Pi
	}
}

// Read returns the current oscillator sample and advances the phase.
func (n *NCO) Read() complex64 {
	sin, cos := math.Sincos(n.phase)
	n.advance()
	return complex(float32(cos), float32(sin))
}

// Peek returns the current oscillator sample without advancing.
func (n *NCO) Peek() complex64 {
	sin, cos := math.Sincos(n.phase)
	return complex(float32(cos), float32(sin))
}
