package sigmux

import (
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"

	"github.com/sigmux/sigmux/pkg/mq"
)

// workerCallback processes one scheduling quantum for a task. Return
// true to stay scheduled, false to be dropped.
type workerCallback func(mqOut *mq.Queue, c *consumer, private interface{}) bool

type workerTask struct {
	cb      workerCallback
	private interface{}
}

// worker is one pool thread: a task queue plus the consumer its tasks
// share. Tasks are queue messages, so a task is either queued or
// running, never both, which gives per-task exclusivity.
type worker struct {
	queue    *mq.Queue
	consumer *consumer
}

func newWorker() *worker {
	return &worker{
		queue:    mq.NewQueue(),
		consumer: newConsumer(),
	}
}

func (w *worker) run(mqOut *mq.Queue) error {
	for {
		msgType, payload := w.queue.Read()
		switch msgType {
		case msgTypeHalt:
			return nil
		case msgTypeTask:
			task := payload.(*workerTask)
			if task.cb(mqOut, w.consumer, task.private) {
				if err := w.queue.Write(msgTypeTask, task); err != nil {
					return err
				}
			}
		}
	}
}

type workerPool struct {
	workers []*worker
	next    uint32
	stopped int32
}

func newWorkerPool(n int) *workerPool {
	p := &workerPool{workers: make([]*worker, n)}
	for i := range p.workers {
		p.workers[i] = newWorker()
	}
	return p
}

// pushTask schedules a task on the pool, round robin.
func (p *workerPool) pushTask(task *workerTask) bool {
	if atomic.LoadInt32(&p.stopped) != 0 {
		return false
	}

	n := atomic.AddUint32(&p.next, 1)
	w := p.workers[int(n)%len(p.workers)]

	return w.queue.Write(msgTypeTask, task) == nil
}

func (p *workerPool) stop() {
	atomic.StoreInt32(&p.stopped, 1)
	for _, w := range p.workers {
		w.queue.WriteUrgent(msgTypeHalt, nil) //nolint:errcheck
		w.consumer.halt()
	}
}

// inspectorTask is the worker callback of one inspector: pull a batch
// from the shared consumer, feed the pipeline, emit the recovered
// symbols as one SAMPLES message. Any failure halts this inspector
// only, never the pool.
func (a *Analyzer) inspectorTask(mqOut *mq.Queue, c *consumer, private interface{}) bool {
	insp := private.(*Inspector)

	if insp.task.consumer == nil {
		insp.task.bind(c)
	}

	if !a.feedInspectorTask(mqOut, insp) {
		insp.setState(StateHalted)
		insp.task.consumer.removeTask(&insp.task)
		return false
	}

	return true
}

func (a *Analyzer) feedInspectorTask(mqOut *mq.Queue, insp *Inspector) bool {
	if insp.State() == StateHalting {
		return false
	}

	samples, ok := insp.task.consumer.assertSamples(&insp.task)
	if !ok {
		return false
	}

	var batch *SampleBatchMsg
	start := time.Now()
	fedTotal := 0

	for len(samples) > 0 {
		fed, err := insp.FeedBulk(samples)
		if err != nil {
			a.logger.Error().Err(err).
				Uint32("inspector_id", insp.Params().InspectorID).
				Msg("inspector feed failed")
			return false
		}

		if insp.NewSymbol() {
			if batch == nil {
				batch = newSampleBatchMsg(insp.Params().InspectorID)
			}
			batch.append(insp.SamplerOutput())
		}

		insp.task.advance(fed)
		samples = samples[fed:]
		fedTotal += fed
	}

	if batch != nil {
		if err := mqOut.Write(MsgTypeSamples, batch); err != nil {
			a.logger.Error().Err(err).Msg("failed to emit sample batch")
			return false
		}

		a.writeAPI.WritePoint(influxdb2.NewPoint("inspector.batch",
			map[string]string{
				"inspector_id": uintToString(batch.InspectorID),
			},
			map[string]interface{}{
				"samples_fed":     fedTotal,
				"symbols_emitted": len(batch.Samples),
				"duration_us":     time.Since(start).Microseconds(),
			}, start))
	}

	return true
}
