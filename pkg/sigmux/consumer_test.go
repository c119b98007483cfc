package sigmux

import (
	"testing"
)

func TestConsumerSingleTask(t *testing.T) {
	c := newConsumer()
	var ts taskState
	ts.bind(c)

	buf := make([]complex64, 16)
	if err := c.push(buf); err != nil {
		t.Fatalf("push: %v", err)
	}

	samples, ok := c.assertSamples(&ts)
	if !ok {
		t.Fatal("assert failed on live consumer")
	}
	if len(samples) != 16 {
		t.Fatalf("got %d samples, want 16", len(samples))
	}

	ts.advance(10)
	samples, ok = c.assertSamples(&ts)
	if !ok || len(samples) != 6 {
		t.Fatalf("after advance: %d samples ok=%v, want 6", len(samples), ok)
	}

	// Push the next buffer before finishing so the blocking read has
	// something to pop.
	next := make([]complex64, 8)
	if err := c.push(next); err != nil {
		t.Fatalf("push: %v", err)
	}

	ts.advance(6)
	samples, ok = c.assertSamples(&ts)
	if !ok || len(samples) != 8 {
		t.Fatalf("next generation: %d samples ok=%v, want 8", len(samples), ok)
	}
}

func TestConsumerSiblingBarrier(t *testing.T) {
	c := newConsumer()
	var ts1, ts2 taskState
	ts1.bind(c)
	ts2.bind(c)

	buf := make([]complex64, 16)
	if err := c.push(buf); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Both tasks bound at generation zero with nothing to consume:
	// the first assert yields, the second completes the barrier and
	// pulls the pushed buffer in.
	if samples, ok := c.assertSamples(&ts1); !ok || samples != nil {
		t.Fatalf("ts1 should yield, got %d samples ok=%v", len(samples), ok)
	}
	if samples, ok := c.assertSamples(&ts2); !ok || len(samples) != 16 {
		t.Fatalf("ts2 should get the buffer, got %d ok=%v", len(samples), ok)
	}
	if samples, ok := c.assertSamples(&ts1); !ok || len(samples) != 16 {
		t.Fatalf("ts1 should sync to the new generation, got %d ok=%v", len(samples), ok)
	}

	// ts1 finishes, ts2 lags: ts1 yields instead of stalling the
	// worker thread.
	ts1.advance(16)
	if samples, ok := c.assertSamples(&ts1); !ok || samples != nil {
		t.Fatalf("finished task should yield, got %d ok=%v", len(samples), ok)
	}

	ts2.advance(10)
	if samples, ok := c.assertSamples(&ts2); !ok || len(samples) != 6 {
		t.Fatalf("lagging task remainder = %d ok=%v, want 6", len(samples), ok)
	}
}

func TestConsumerRemoveTaskReleasesBarrier(t *testing.T) {
	c := newConsumer()
	var ts1, ts2 taskState
	ts1.bind(c)
	ts2.bind(c)

	buf := make([]complex64, 8)
	c.push(buf)
	c.push(make([]complex64, 4))

	c.assertSamples(&ts1) // yields, counted
	c.assertSamples(&ts2) // pulls first buffer
	c.assertSamples(&ts1) // syncs

	// ts1 finishes the buffer, then leaves. ts2 must still be able to
	// reach the next generation on its own.
	ts1.advance(8)
	c.assertSamples(&ts1)
	c.removeTask(&ts1)

	ts2.advance(8)
	samples, ok := c.assertSamples(&ts2)
	if !ok || len(samples) != 4 {
		t.Fatalf("ts2 next generation: %d ok=%v, want 4", len(samples), ok)
	}
}

func TestConsumerHalt(t *testing.T) {
	c := newConsumer()
	var ts taskState
	ts.bind(c)

	c.push(make([]complex64, 4))
	c.halt()

	// Halt is urgent: it overtakes the queued buffer.
	if _, ok := c.assertSamples(&ts); ok {
		t.Fatal("halted consumer still served samples")
	}
	if !c.closed {
		t.Fatal("consumer not marked closed")
	}
}

func TestConsumerTaskCount(t *testing.T) {
	c := newConsumer()
	if c.hasTasks() {
		t.Fatal("fresh consumer reports tasks")
	}

	var ts taskState
	ts.bind(c)
	if !c.hasTasks() {
		t.Fatal("bound task not visible")
	}

	c.removeTask(&ts)
	if c.hasTasks() {
		t.Fatal("removed task still visible")
	}
}
