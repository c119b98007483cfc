package hangagc

import (
	"fmt"
	"math"

	"github.com/racerxdl/segdsp/tools"
)

// targetLevel is the envelope the controller drives the output peak
// toward. Consumers that want an output peak near 1.0 multiply by
// 2 * sqrt(2).
const targetLevel = 0.35355339

// Params holds the controller time constants, all expressed in
// samples.
type Params struct {
	FastRiseT float64
	FastFallT float64
	SlowRiseT float64
	SlowFallT float64
	HangMax   int

	DelayLineSize  int
	MagHistorySize int
}

// AGC is a dual-envelope automatic gain controller with a hang timer:
// a fast envelope follows spikes, a slow envelope follows the carrier
// and is frozen for HangMax samples after the signal drops so short
// pauses do not pump the gain. The output sample is delayed so the
// gain applied to it was computed from its own neighborhood.
type AGC struct {
	params Params

	delayLine []complex64
	delayPtr  int

	magHistory []float64
	magPtr     int

	fastAlphaRise float64
	fastAlphaFall float64
	slowAlphaRise float64
	slowAlphaFall float64

	fastLevel float64
	slowLevel float64
	hangN     int
}

// alphaFromT converts a time constant in samples into a one-pole
// smoothing coefficient.
func alphaFromT(t float64) float64 {
	if t <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/t)
}

// New builds a controller from the given time constants.
func New(params Params) (*AGC, error) {
	if params.DelayLineSize < 1 || params.MagHistorySize < 1 {
		return nil, fmt.Errorf("hangagc: delay line (%d) and magnitude history (%d) must be at least 1 sample",
			params.DelayLineSize, params.MagHistorySize)
	}

	return &AGC{
		params:        params,
		delayLine:     make([]complex64, params.DelayLineSize),
		magHistory:    make([]float64, params.MagHistorySize),
		fastAlphaRise: alphaFromT(params.FastRiseT),
		fastAlphaFall: alphaFromT(params.FastFallT),
		slowAlphaRise: alphaFromT(params.SlowRiseT),
		slowAlphaFall: alphaFromT(params.SlowFallT),
	}, nil
}

// Feed pushes one sample through the controller and returns the gain
// corrected, delayed sample.
func (a *AGC) Feed(x complex64) complex64 {
	delayed := a.delayLine[a.delayPtr]
	a.delayLine[a.delayPtr] = x
	a.delayPtr = (a.delayPtr + 1) % len(a.delayLine)

	mag := math.Sqrt(float64(tools.ComplexAbsSquared(x)))
	a.magHistory[a.magPtr] = mag
	a.magPtr = (a.magPtr + 1) % len(a.magHistory)

	peak := 0.0
	for _, m := range a.magHistory {
		if m > peak {
			peak = m
		}
	}

	if peak > a.fastLevel {
		a.fastLevel += a.fastAlphaRise * (peak - a.fastLevel)
	} else {
		a.fastLevel += a.fastAlphaFall * (peak - a.fastLevel)
	}

	if peak > a.slowLevel {
		a.slowLevel += a.slowAlphaRise * (peak - a.slowLevel)
		a.hangN = 0
	} else if a.hangN < a.params.HangMax {
		a.hangN++
	} else {
		a.slowLevel += a.slowAlphaFall * (peak - a.slowLevel)
	}

	level := a.fastLevel
	if a.slowLevel > level {
		level = a.slowLevel
	}

	if level < 1e-9 {
		return delayed
	}

	gain := float32(targetLevel / level)
	return complex(real(delayed)*gain, imag(delayed)*gain)
}

// Finalize releases controller state. The controller must not be fed
// afterwards.
func (a *AGC) Finalize() {
	a.delayLine = nil
	a.magHistory = nil
}
