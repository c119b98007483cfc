package synth

import (
	"context"
	"math/rand"
	"time"

	"github.com/sigmux/sigmux/pkg/dsp/nco"
	"github.com/sigmux/sigmux/pkg/dsp/sampling"
)

// Options describes the generated test signal.
type Options struct {
	SampleRate    int
	BufferSize    int
	CarrierOffset float64 // Hz off baseband center
	Baud          float64 // symbol rate of the BPSK modulation
	Amplitude     float64
	Noise         float64 // gaussian noise sigma
}

// BPSKSource emits a BPSK-modulated carrier plus gaussian noise, paced
// at roughly real time. It gives the engine something it can actually
// lock to without hardware attached.
type BPSKSource struct {
	opts Options

	lo        *nco.NCO
	symPeriod float64
	symClock  float64
	symbol    float32

	rng *rand.Rand
}

func NewBPSKSource(opts Options) *BPSKSource {
	s := &BPSKSource{
		opts:      opts,
		lo:        nco.New(sampling.NormFreq(float64(opts.SampleRate), opts.CarrierOffset)),
		symPeriod: float64(opts.SampleRate) / opts.Baud,
		symbol:    1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return s
}

func (s *BPSKSource) SampleRate() int {
	return s.opts.SampleRate
}

func (s *BPSKSource) fill(buf []complex64) {
	amp := float32(s.opts.Amplitude)
	sigma := s.opts.Noise

	for i := range buf {
		s.symClock++
		if s.symClock >= s.symPeriod {
			s.symClock -= s.symPeriod
			if s.rng.Intn(2) == 0 {
				s.symbol = -s.symbol
			}
		}

		carrier := s.lo.Read()
		noise := complex(
			float32(s.rng.NormFloat64()*sigma),
			float32(s.rng.NormFloat64()*sigma))

		buf[i] = carrier*complex(amp*s.symbol, 0) + noise
	}
}

func (s *BPSKSource) Start(ctx context.Context, out chan<- []complex64) error {
	interval := time.Duration(float64(s.opts.BufferSize) / float64(s.opts.SampleRate) * float64(time.Second))
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			buf := make([]complex64, s.opts.BufferSize)
			s.fill(buf)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- buf:
			}
		}
	}
}

func (s *BPSKSource) Stop() error {
	return nil
}
