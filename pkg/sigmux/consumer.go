package sigmux

import (
	"sync/atomic"

	"github.com/sigmux/sigmux/pkg/mq"
)

// consumer hands the shared source stream to the inspector tasks of
// one worker. Buffers arrive through the consumer queue; the current
// buffer advances to the next generation only once every registered
// task has consumed it. All consumer state except the queue and the
// task counter is confined to the worker goroutine, so no lock guards
// it.
type consumer struct {
	queue *mq.Queue

	buf      []complex64
	gen      uint64
	tasks    int
	consumed int
	closed   bool

	// taskCount mirrors tasks for the analyzer's sample pump, which
	// skips consumers that have nothing to feed.
	taskCount int32
}

// taskState is a per-inspector cursor into the consumer's current
// buffer.
type taskState struct {
	consumer *consumer
	gen      uint64
	off      int
	counted  bool
}

func newConsumer() *consumer {
	return &consumer{queue: mq.NewQueue()}
}

// hasTasks is safe from any goroutine.
func (c *consumer) hasTasks() bool {
	return atomic.LoadInt32(&c.taskCount) > 0
}

// push delivers a source buffer. Safe from any goroutine.
func (c *consumer) push(buf []complex64) error {
	return c.queue.Write(msgTypeBuffer, buf)
}

// halt closes the consumer ahead of any queued buffer. Safe from any
// goroutine.
func (c *consumer) halt() {
	c.queue.WriteUrgent(msgTypeHalt, nil) //nolint:errcheck
}

// bind attaches a task to this consumer. The task starts at the end
// of the current buffer: it sees data beginning with the next
// generation.
func (ts *taskState) bind(c *consumer) {
	ts.consumer = c
	ts.gen = c.gen
	ts.off = len(c.buf)
	ts.counted = false

	c.tasks++
	atomic.AddInt32(&c.taskCount, 1)
}

// nextBuffer blocks on the consumer queue for the next generation.
// Returns false once the consumer has been halted.
func (c *consumer) nextBuffer() bool {
	for {
		msgType, payload := c.queue.Read()
		switch msgType {
		case msgTypeHalt:
			c.closed = true
			return false
		case msgTypeBuffer:
			c.buf = payload.([]complex64)
			c.gen++
			c.consumed = 0
			return true
		}
	}
}

// assertSamples returns the unconsumed remainder of the current buffer
// for this task. A task that is ahead of its siblings gets an empty
// slice and stays scheduled; ok is false only once the consumer is
// closed.
func (c *consumer) assertSamples(ts *taskState) ([]complex64, bool) {
	for {
		if c.closed {
			return nil, false
		}

		if ts.gen != c.gen {
			ts.gen = c.gen
			ts.off = 0
			ts.counted = false
		}

		if ts.off < len(c.buf) {
			return c.buf[ts.off:], true
		}

		if !ts.counted {
			ts.counted = true
			c.consumed++
		}

		if c.consumed < c.tasks {
			// Siblings still own the current buffer; yield.
			return nil, true
		}

		if !c.nextBuffer() {
			return nil, false
		}
	}
}

// advance moves the task cursor past fed samples.
func (ts *taskState) advance(fed int) {
	ts.off += fed
}

// removeTask detaches a task, releasing its claim on the current
// buffer.
func (c *consumer) removeTask(ts *taskState) {
	c.tasks--
	atomic.AddInt32(&c.taskCount, -1)

	if ts.counted {
		c.consumed--
	}

	ts.consumer = nil
}
