package chandet

import (
	"errors"
	"fmt"
	"math/cmplx"

	dspfft "github.com/mjibson/go-dsp/fft"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/racerxdl/segdsp/tools"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/sigmux/sigmux/pkg/dsp/filters/fir"
	"github.com/sigmux/sigmux/pkg/dsp/nco"
	"github.com/sigmux/sigmux/pkg/dsp/sampling"
)

// Mode selects the baud estimation strategy.
type Mode int

const (
	// ModeAutocorrelation estimates the symbol rate from the strongest
	// off-zero lag of the window autocorrelation.
	ModeAutocorrelation Mode = iota
	// ModeNonlinearDiff estimates the symbol rate from the dominant
	// spectral line of the squared-magnitude sample difference.
	ModeNonlinearDiff
)

// Channel is a spectral region of interest: center frequency and
// bandwidth, both in Hz relative to the source baseband.
type Channel struct {
	Fc float64
	Bw float64
}

// Params configures a detector.
type Params struct {
	SampRate   float64
	WindowSize int
	Alpha      float64
	Mode       Mode
	Fc         float64
	Bw         float64
}

// AdjustToChannel copies the channel geometry into the detector
// parameters.
func AdjustToChannel(params *Params, ch Channel) {
	params.Fc = ch.Fc
	params.Bw = ch.Bw
}

var errFinalized = errors.New("chandet: detector finalized")

// Detector isolates a channel from the incoming stream and runs a
// blind baud estimator over a tumbling window of the isolated signal.
// The most recent channel sample is kept available for downstream
// carrier and timing recovery.
type Detector struct {
	params Params

	lo     *nco.NCO
	filter *dsp.FirFilter

	window []complex64
	ptr    int

	lastWindowSample complex64
	baud             float64

	fft *fourier.CmplxFFT

	in  [1]complex64
	out [8]complex64
}

// New builds a detector. The channel must fit the source: bandwidth,
// sample rate and window size all have to be positive.
func New(params Params) (*Detector, error) {
	if params.SampRate <= 0 {
		return nil, fmt.Errorf("chandet: invalid sample rate %g", params.SampRate)
	}
	if params.Bw <= 0 || params.Bw > params.SampRate {
		return nil, fmt.Errorf("chandet: invalid bandwidth %g for sample rate %g",
			params.Bw, params.SampRate)
	}
	if params.WindowSize < 2 {
		return nil, fmt.Errorf("chandet: window size %d too small", params.WindowSize)
	}

	taps := fir.MakeLowPass(1.0, params.SampRate, params.Bw/2, params.Bw/4, fir.Hamming)

	d := &Detector{
		params: params,
		lo:     nco.New(sampling.NormFreq(params.SampRate, params.Fc)),
		filter: dsp.MakeFirFilter(taps),
		window: make([]complex64, params.WindowSize),
		fft:    fourier.NewCmplxFFT(params.WindowSize),
	}

	return d, nil
}

// Params returns the construction parameters.
func (d *Detector) Params() Params {
	return d.params
}

// Baud returns the current smoothed baud estimate, 0 until the first
// full window has been analyzed.
func (d *Detector) Baud() float64 {
	return d.baud
}

// LastWindowSample returns the most recent channel-isolated sample.
func (d *Detector) LastWindowSample() complex64 {
	return d.lastWindowSample
}

// Feed pushes one raw source sample through the channelizer and the
// estimation window.
func (d *Detector) Feed(x complex64) error {
	if d.window == nil {
		return errFinalized
	}

	// Shift the channel to baseband, then isolate it.
	d.in[0] = x * conj(d.lo.Read())
	n := d.filter.WorkBuffer(d.in[:], d.out[:])
	if n < 1 {
		return nil
	}

	d.lastWindowSample = d.out[0]
	d.window[d.ptr] = d.out[0]
	d.ptr++

	if d.ptr == len(d.window) {
		d.ptr = 0
		d.analyzeWindow()
	}

	return nil
}

func (d *Detector) analyzeWindow() {
	var est float64

	switch d.params.Mode {
	case ModeAutocorrelation:
		est = d.estimateFAC()
	case ModeNonlinearDiff:
		est = d.estimateNLN()
	}

	if est <= 0 {
		return
	}

	if d.baud == 0 {
		d.baud = est
		return
	}

	alpha := d.params.Alpha * float64(len(d.window))
	if alpha > 1 {
		alpha = 1
	}
	d.baud += alpha * (est - d.baud)
}

// estimateFAC computes the cyclic autocorrelation of the window via a
// forward/inverse FFT round trip and returns the rate implied by the
// lag of largest magnitude in [2, n/2), provided it reaches a quarter
// of the zero-lag value. The chosen lag is not required to be the
// first peak.
func (d *Detector) estimateFAC() float64 {
	n := len(d.window)
	src := make([]complex128, n)
	for i, s := range d.window {
		src[i] = complex128(s)
	}

	coeff := d.fft.Coefficients(nil, src)
	for i, c := range coeff {
		re := real(c)
		im := imag(c)
		coeff[i] = complex(re*re+im*im, 0)
	}
	corr := d.fft.Sequence(nil, coeff)

	r0 := cmplx.Abs(corr[0])
	if r0 <= 0 {
		return 0
	}

	bestLag := 0
	bestVal := 0.0
	for lag := 2; lag < n/2; lag++ {
		v := cmplx.Abs(corr[lag])
		if v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}

	if bestLag == 0 || bestVal < 0.25*r0 {
		return 0
	}

	return d.params.SampRate / float64(bestLag)
}

// estimateNLN runs the nonlinear difference preprocessor and returns
// the rate at the dominant spectral line.
func (d *Detector) estimateNLN() float64 {
	n := len(d.window)
	diff := make([]float64, n)

	var mean float64
	for i := 1; i < n; i++ {
		diff[i] = float64(tools.ComplexAbsSquared(d.window[i] - d.window[i-1]))
		mean += diff[i]
	}
	mean /= float64(n - 1)
	for i := range diff {
		diff[i] -= mean
	}

	coeff := dspfft.FFTReal(diff)

	bestBin := 0
	bestVal := 0.0
	for k := 1; k < n/2; k++ {
		v := cmplx.Abs(coeff[k])
		if v > bestVal {
			bestVal = v
			bestBin = k
		}
	}

	if bestBin == 0 {
		return 0
	}

	return float64(bestBin) * d.params.SampRate / float64(n)
}

// Destroy releases detector state. Feeding a destroyed detector fails.
func (d *Detector) Destroy() {
	d.window = nil
	d.filter = nil
}

func conj(x complex64) complex64 {
	return complex(real(x), -imag(x))
}
