package sigmux

import (
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/sigmux/sigmux/pkg/dsp/agc/hangagc"
	"github.com/sigmux/sigmux/pkg/dsp/chandet"
	"github.com/sigmux/sigmux/pkg/dsp/costas"
	"github.com/sigmux/sigmux/pkg/dsp/nco"
	"github.com/sigmux/sigmux/pkg/dsp/sampling"
)

// State is the inspector lifecycle stage. Transitions are strictly
// monotonic: Created -> Running -> Halting -> Halted.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateHalting
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateHalting:
		return "halting"
	case StateHalted:
		return "halted"
	}
	return "unknown"
}

// CarrierControl selects the carrier recovery variant of the feed
// pipeline.
type CarrierControl int32

const (
	CarrierControlManual CarrierControl = iota
	CarrierControlCostas2
	CarrierControlCostas4
)

// Params is the user-tunable inspector configuration. InspectorID is
// an opaque client label echoed in every outbound message tied to the
// inspector.
type Params struct {
	InspectorID uint32
	FcCtrl      CarrierControl
	FcOff       float32 // additional carrier offset, Hz
	FcPhi       float32 // static carrier phase, radians
	Baud        float32 // expected baud rate; 0 disables the sampler
	SymPhase    float32 // sampling phase within a symbol, [0, 1)
}

// AGC spike durations, measured in symbol times.
const (
	inspectorFastRiseFrac   = 3.9062e-1
	inspectorFastFallFrac   = 2 * inspectorFastRiseFrac
	inspectorSlowRiseFrac   = 10 * inspectorFastRiseFrac
	inspectorSlowFallFrac   = 10 * inspectorFastFallFrac
	inspectorHangMaxFrac    = 0.19531
	inspectorDelayLineFrac  = 0.39072
	inspectorMagHistoryFrac = 0.39072
)

const inspectorDetectorAlpha = 1e-4

// Inspector is a per-channel DSP pipeline: two blind baud detectors, a
// local oscillator and static phase rotor, a hang AGC, two Costas
// loops and a fractional symbol sampler. DSP state is touched only by
// the worker that currently holds the inspector; params arrive from
// the analyzer thread and are serialized with the feed loop by a small
// mutex.
type Inspector struct {
	state int32

	mu sync.Mutex

	facBaudDet *chandet.Detector
	nlnBaudDet *chandet.Detector

	lo    *nco.NCO
	phase complex64

	agc *hangagc.AGC

	costas2 *costas.Loop
	costas4 *costas.Loop

	params Params

	symPeriod        float64
	symPhase         float64
	symLastSample    complex64
	symSamplerOutput complex64
	symNewSample     bool

	task taskState
}

func fracSize(tau, frac float64) int {
	n := int(tau*frac + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// newInspector builds an inspector for the given channel against a
// source running at sourceSampRate. windowSize is the detector window,
// normally the source buffer size.
func newInspector(sourceSampRate float64, windowSize int, ch chandet.Channel) (*Inspector, error) {
	insp := &Inspector{
		state: int32(StateCreated),
		phase: 1,
	}

	params := chandet.Params{
		SampRate:   sourceSampRate,
		WindowSize: windowSize,
		Alpha:      inspectorDetectorAlpha,
	}
	chandet.AdjustToChannel(&params, ch)

	var err error

	params.Mode = chandet.ModeAutocorrelation
	if insp.facBaudDet, err = chandet.New(params); err != nil {
		insp.Destroy()
		return nil, err
	}

	params.Mode = chandet.ModeNonlinearDiff
	if insp.nlnBaudDet, err = chandet.New(params); err != nil {
		insp.Destroy()
		return nil, err
	}

	insp.lo = nco.New(0)

	tau := sourceSampRate / ch.Bw // samples per symbol

	insp.agc, err = hangagc.New(hangagc.Params{
		FastRiseT:      tau * inspectorFastRiseFrac,
		FastFallT:      tau * inspectorFastFallFrac,
		SlowRiseT:      tau * inspectorSlowRiseFrac,
		SlowFallT:      tau * inspectorSlowFallFrac,
		HangMax:        fracSize(tau, inspectorHangMaxFrac),
		DelayLineSize:  fracSize(tau, inspectorDelayLineFrac),
		MagHistorySize: fracSize(tau, inspectorMagHistoryFrac),
	})
	if err != nil {
		insp.Destroy()
		return nil, err
	}

	omega := sampling.NormFreq(sourceSampRate, ch.Bw)

	if insp.costas2, err = costas.New(costas.KindBPSK, 0, omega, 3, 1e-2*omega); err != nil {
		insp.Destroy()
		return nil, err
	}
	if insp.costas4, err = costas.New(costas.KindQPSK, 0, omega, 3, 1e-2*omega); err != nil {
		insp.Destroy()
		return nil, err
	}

	return insp, nil
}

// State reads the lifecycle stage with acquire semantics.
func (insp *Inspector) State() State {
	return State(atomic.LoadInt32(&insp.state))
}

func (insp *Inspector) setState(s State) {
	atomic.StoreInt32(&insp.state, int32(s))
}

// Destroy finalizes the DSP substates in reverse construction order.
// Legal only while Created or Halted.
func (insp *Inspector) Destroy() {
	if insp.costas4 != nil {
		insp.costas4.Finalize()
	}
	if insp.costas2 != nil {
		insp.costas2.Finalize()
	}
	if insp.agc != nil {
		insp.agc.Finalize()
	}
	if insp.nlnBaudDet != nil {
		insp.nlnBaudDet.Destroy()
	}
	if insp.facBaudDet != nil {
		insp.facBaudDet.Destroy()
	}
}

// Params returns the current user configuration.
func (insp *Inspector) Params() Params {
	insp.mu.Lock()
	p := insp.params
	insp.mu.Unlock()
	return p
}

// SetParams installs a new configuration and rederives the oscillator
// frequency, static phase and symbol period.
func (insp *Inspector) SetParams(p Params) {
	insp.mu.Lock()
	insp.params = p

	fs := insp.facBaudDet.Params().SampRate

	if p.Baud > 0 {
		insp.symPeriod = 1 / sampling.NormBaud(fs, float64(p.Baud))
	} else {
		insp.symPeriod = 0
	}

	insp.lo.SetFreq(sampling.NormFreq(fs, float64(p.FcOff)))
	insp.phase = complex64(cmplx.Exp(complex(0, float64(p.FcPhi))))
	insp.mu.Unlock()
}

// Baud returns the current estimates of both baud detectors.
func (insp *Inspector) Baud() BaudResult {
	insp.mu.Lock()
	r := BaudResult{
		FAC: insp.facBaudDet.Baud(),
		NLN: insp.nlnBaudDet.Baud(),
	}
	insp.mu.Unlock()
	return r
}

// SymPeriod returns the sampler period in samples; 0 means the
// sampler is disabled.
func (insp *Inspector) SymPeriod() float64 {
	insp.mu.Lock()
	p := insp.symPeriod
	insp.mu.Unlock()
	return p
}

const agcPostGain = 2 * math.Sqrt2

// FeedBulk runs the inner DSP loop over the given samples and returns
// how many were consumed. It returns early as soon as one symbol
// sample has been produced, leaving the emitted sample in
// SamplerOutput. On a DSP feed failure it returns -1 and the error.
func (insp *Inspector) FeedBulk(x []complex64) (int, error) {
	insp.mu.Lock()
	defer insp.mu.Unlock()

	sampPhaseSamples := float64(insp.params.SymPhase) * insp.symPeriod
	insp.symNewSample = false

	i := 0
	for ; i < len(x) && !insp.symNewSample; i++ {
		if err := insp.facBaudDet.Feed(x[i]); err != nil {
			return -1, err
		}
		if err := insp.nlnBaudDet.Feed(x[i]); err != nil {
			return -1, err
		}

		// The windowed sample from the autocorrelation detector is
		// the canonical pre-mixer sample.
		detX := insp.facBaudDet.LastWindowSample()

		// Carrier control.
		detX *= conj(insp.lo.Read()) * insp.phase
		detX = insp.agc.Feed(detX) * complex(agcPostGain, 0)

		var sample complex64
		switch insp.params.FcCtrl {
		case CarrierControlManual:
			sample = detX
		case CarrierControlCostas2:
			insp.costas2.Feed(detX)
			sample = insp.costas2.Y
		case CarrierControlCostas4:
			insp.costas4.Feed(detX)
			sample = insp.costas4.Y
		}

		if insp.symPeriod >= 1 {
			insp.symPhase++
			if insp.symPhase >= insp.symPeriod {
				insp.symPhase -= insp.symPeriod
			}

			insp.symNewSample =
				int(math.Floor(insp.symPhase-sampPhaseSamples)) == 0

			if insp.symNewSample {
				alpha := float32(insp.symPhase - math.Floor(insp.symPhase))

				insp.symSamplerOutput = complex(0.5, 0) *
					(complex(1-alpha, 0)*insp.symLastSample +
						complex(alpha, 0)*sample)
			}
		}

		insp.symLastSample = sample
	}

	return i, nil
}

// NewSymbol reports whether the last FeedBulk emitted a symbol sample.
func (insp *Inspector) NewSymbol() bool {
	return insp.symNewSample
}

// SamplerOutput returns the symbol sample emitted by the last
// FeedBulk, valid when NewSymbol is true.
func (insp *Inspector) SamplerOutput() complex64 {
	return insp.symSamplerOutput
}

func conj(x complex64) complex64 {
	return complex(real(x), -imag(x))
}
