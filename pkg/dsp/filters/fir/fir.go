package fir

import (
	"math"
)

type WindowType int

const (
	Hamming WindowType = iota
	Hann
	Blackman
)

var windowMaxAttenuation = map[WindowType]int{
	Hamming:  53,
	Hann:     44,
	Blackman: 74,
}

func window(winType WindowType, ntaps int) []float32 {
	ret := make([]float32, ntaps)
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		w := 2 * math.Pi * float64(i) / M
		switch winType {
		case Hamming:
			ret[i] = float32(0.54 - 0.46*math.Cos(w))
		case Hann:
			ret[i] = float32(0.5 - 0.5*math.Cos(w))
		case Blackman:
			ret[i] = float32(0.42 - 0.5*math.Cos(w) + 0.08*math.Cos(2*w))
		}
	}

	return ret
}

func computeNTaps(sampleRate, transitionWidth float64, winType WindowType) int {
	ntaps := int(float64(windowMaxAttenuation[winType]) * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1 // make odd
	return ntaps
}

// MakeLowPass builds windowed-sinc low-pass taps normalized to the
// given passband gain.
func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float32, nTaps)
	w := window(winType, nTaps)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = float32(fwT0 / math.Pi * float64(w[i+M]))
		} else {
			fi := float64(i)
			taps[i+M] = float32(math.Sin(fi*fwT0) / (fi * math.Pi) * float64(w[i+M]))
		}
	}

	fmax := float64(taps[M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M])
	}

	gain /= fmax
	for i := 0; i < nTaps; i++ {
		taps[i] = float32(float64(taps[i]) * gain)
	}

	return taps
}
