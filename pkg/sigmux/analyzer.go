package sigmux

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sigmux/sigmux/pkg/mq"
	"github.com/sigmux/sigmux/pkg/source"
	"github.com/sigmux/sigmux/pkg/util"
)

// Analyzer multiplexes channel inspectors over a shared sample source.
// Clients talk to it exclusively through its two message queues: the
// input queue carries control requests, the output queue carries
// control responses and symbol batches. The inspector table is owned
// by the analyzer goroutine; workers only ever borrow inspectors.
type Analyzer struct {
	opts Options

	mqIn  *mq.Queue
	mqOut *mq.Queue

	inspectors []*Inspector

	pool *workerPool
	src  source.Source

	writeAPI api.WriteAPI
	logger   zerolog.Logger

	snapshot atomic.Value

	ctx    context.Context
	cancel context.CancelFunc
}

// AnalyzerOption mutates an analyzer during construction.
type AnalyzerOption func(a *Analyzer) error

func WithLogger(logger zerolog.Logger) AnalyzerOption {
	return func(a *Analyzer) error {
		a.logger = logger
		return nil
	}
}

func WithWriteAPI(writeAPI api.WriteAPI) AnalyzerOption {
	return func(a *Analyzer) error {
		a.writeAPI = writeAPI
		return nil
	}
}

// NewAnalyzer builds an analyzer over the given source.
func NewAnalyzer(src source.Source, opts Options, options ...AnalyzerOption) (*Analyzer, error) {
	opts.applyDefaults()

	if src == nil {
		return nil, fmt.Errorf("sigmux: must specify a sample source")
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sigmux: invalid sample rate %d", opts.SampleRate)
	}

	a := &Analyzer{
		opts:     opts,
		mqIn:     mq.NewQueue(),
		mqOut:    mq.NewQueue(),
		pool:     newWorkerPool(opts.Workers),
		src:      src,
		writeAPI: &util.MockWriteAPI{},
		logger:   log.Logger,
	}

	for _, opt := range options {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	mq.UseMessagePool(opts.UseMessagePool)
	a.snapshot.Store([]InspectorStatus{})

	return a, nil
}

// Out exposes the output queue for consumers that read symbol batches
// directly.
func (a *Analyzer) Out() *mq.Queue {
	return a.mqOut
}

// Stop cancels the engine. Start returns once everything wound down.
func (a *Analyzer) Stop() error {
	a.cancel()
	return a.src.Stop()
}

// Start runs the engine until the context is cancelled or the source
// ends.
func (a *Analyzer) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	a.ctx, a.cancel = context.WithCancel(ctx)

	rawSampleChan := make(chan []complex64, 1)

	eg.Go(func() error {
		return a.src.Start(a.ctx, rawSampleChan)
	})

	eg.Go(func() error {
		return a.pumpSamples(rawSampleChan)
	})

	for _, w := range a.pool.workers {
		thisWorker := w
		eg.Go(func() error {
			return thisWorker.run(a.mqOut)
		})
	}

	eg.Go(a.controlLoop)
	eg.Go(a.sweepLoop)

	// Teardown watchdog: once the context dies, unblock everything.
	eg.Go(func() error {
		<-a.ctx.Done()
		a.pool.stop()
		a.mqIn.WriteUrgent(msgTypeHalt, nil) //nolint:errcheck
		return nil
	})

	a.logger.Info().
		Str("sample_rate", util.HzString(float64(a.opts.SampleRate))).
		Int("workers", a.opts.Workers).
		Int("buffer_size", a.opts.BufferSize).
		Msg("starting analyzer")

	err := eg.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// pumpSamples fans source buffers out to every worker consumer that
// has inspectors attached.
func (a *Analyzer) pumpSamples(rawSampleChan <-chan []complex64) error {
	for {
		select {
		case <-a.ctx.Done():
			return a.ctx.Err()
		case buf := <-rawSampleChan:
			for _, w := range a.pool.workers {
				if !w.consumer.hasTasks() {
					continue
				}
				if err := w.consumer.push(buf); err != nil {
					return err
				}
			}
		}
	}
}

// controlLoop serially executes control requests against the
// inspector table. It is the only goroutine that mutates the table.
func (a *Analyzer) controlLoop() error {
	for {
		msgType, payload := a.mqIn.Read()

		switch msgType {
		case msgTypeHalt:
			return nil

		case msgTypeSweep:
			a.sweepHalted()
			a.publishSnapshot()

		case MsgTypeInspector:
			msg, ok := payload.(*InspectorMsg)
			if !ok {
				a.logger.Warn().Msg("dropping malformed inspector message")
				continue
			}
			if err := a.handleInspectorMsg(msg); err != nil {
				return err
			}
			a.publishSnapshot()
		}
	}
}

// sweepLoop periodically asks the control loop to reap Halted
// inspectors whose close was never observed.
func (a *Analyzer) sweepLoop() error {
	ticker := time.NewTicker(a.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.mqIn.Write(msgTypeSweep, nil); err != nil {
				return nil
			}
		}
	}
}

// InspectorStatus is one row of the published engine snapshot.
type InspectorStatus struct {
	Handle Handle     `json:"handle"`
	State  string     `json:"state"`
	Params Params     `json:"params"`
	Baud   BaudResult `json:"baud"`
}

// publishSnapshot refreshes the status view. Runs on the analyzer
// goroutine after every table mutation.
func (a *Analyzer) publishSnapshot() {
	statuses := make([]InspectorStatus, 0, len(a.inspectors))
	for i, insp := range a.inspectors {
		if insp == nil {
			continue
		}
		statuses = append(statuses, InspectorStatus{
			Handle: Handle(i),
			State:  insp.State().String(),
			Params: insp.Params(),
			Baud:   insp.Baud(),
		})
	}
	a.snapshot.Store(statuses)
}

// StatusSnapshot returns the last published engine state. Safe from
// any goroutine.
func (a *Analyzer) StatusSnapshot() interface{} {
	return a.snapshot.Load()
}

func uintToString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
