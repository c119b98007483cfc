package sigmux

import (
	"runtime"
	"time"
)

// Options configures an analyzer.
type Options struct {
	// SampleRate of the upstream source, Hz.
	SampleRate int

	// BufferSize is the source buffer length in samples; it also
	// sizes the baud detector windows.
	BufferSize int

	// Workers is the size of the inspector worker pool.
	Workers int

	// SweepInterval is how often halted inspectors are reaped.
	SweepInterval time.Duration

	// UseMessagePool enables free-list pooling of queue headers.
	UseMessagePool bool
}

const (
	defaultBufferSize    = 4096
	defaultSweepInterval = 5 * time.Second
)

func (o *Options) applyDefaults() {
	if o.BufferSize == 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = defaultSweepInterval
	}
}
