package costas

import (
	"fmt"

	"github.com/sigmux/sigmux/pkg/dsp/nco"
)

// Kind selects the phase detector of the loop.
type Kind int

const (
	KindBPSK Kind = iota
	KindQPSK
)

// Loop is a Costas carrier-recovery loop. The incoming sample is
// de-rotated by the loop oscillator, the I/Q arms are low-pass
// filtered by a cascade of one-pole sections, and the detected phase
// error steers the oscillator frequency.
type Loop struct {
	kind Kind

	lo       *nco.NCO
	freq     float64
	freqHint float64
	maxDev   float64

	armAlpha float64
	armI     []float64
	armQ     []float64

	loopGain float64

	// Y is the de-rotated output of the last Feed.
	Y complex64
}

// New builds a loop of the given kind. freqHint is the initial
// normalized oscillator frequency, omega the natural (arm) bandwidth,
// order the number of one-pole arm sections, loopGain the error gain
// applied to the frequency correction.
func New(kind Kind, freqHint, omega float64, order int, loopGain float64) (*Loop, error) {
	if order < 1 {
		return nil, fmt.Errorf("costas: arm order must be positive, got %d", order)
	}
	if omega <= 0 {
		return nil, fmt.Errorf("costas: natural frequency must be positive, got %g", omega)
	}

	return &Loop{
		kind:     kind,
		lo:       nco.New(freqHint),
		freq:     freqHint,
		freqHint: freqHint,
		maxDev:   omega,
		armAlpha: alphaFromOmega(omega),
		armI:     make([]float64, order),
		armQ:     make([]float64, order),
		loopGain: loopGain,
	}, nil
}

// alphaFromOmega maps the normalized arm bandwidth to a one-pole
// smoothing coefficient, clamped into (0, 1].
func alphaFromOmega(omega float64) float64 {
	alpha := omega
	if alpha > 1 {
		alpha = 1
	}
	if alpha <= 0 {
		alpha = 1e-3
	}
	return alpha
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Feed runs one sample through the loop. The de-rotated sample is left
// in Y.
func (l *Loop) Feed(x complex64) {
	mixed := x * conj(l.lo.Read())
	l.Y = mixed

	i := float64(real(mixed))
	q := float64(imag(mixed))

	for n := range l.armI {
		l.armI[n] += l.armAlpha * (i - l.armI[n])
		i = l.armI[n]
		l.armQ[n] += l.armAlpha * (q - l.armQ[n])
		q = l.armQ[n]
	}

	var err float64
	switch l.kind {
	case KindBPSK:
		err = i * q
	case KindQPSK:
		err = q*sign(i) - i*sign(q)
	}

	l.freq += l.loopGain * err
	if l.freq > l.freqHint+l.maxDev {
		l.freq = l.freqHint + l.maxDev
	} else if l.freq < l.freqHint-l.maxDev {
		l.freq = l.freqHint - l.maxDev
	}
	l.lo.SetFreq(l.freq)
}

// Freq returns the current normalized loop frequency.
func (l *Loop) Freq() float64 {
	return l.freq
}

// Finalize releases loop state.
func (l *Loop) Finalize() {
	l.armI = nil
	l.armQ = nil
}

func conj(x complex64) complex64 {
	return complex(real(x), -imag(x))
}
