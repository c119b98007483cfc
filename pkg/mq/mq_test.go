package mq

import (
	"sync"
	"testing"
	"time"
)

func TestReadOrderMatchesWriteOrder(t *testing.T) {
	q := NewQueue()

	for i := 0; i < 16; i++ {
		if err := q.Write(1, i); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for i := 0; i < 16; i++ {
		_, payload := q.Read()
		if payload.(int) != i {
			t.Fatalf("read %d: got %v", i, payload)
		}
	}
}

func TestUrgentOvertakesPending(t *testing.T) {
	q := NewQueue()

	// Non-urgent A, non-urgent B, urgent C: reads produce C, A, B.
	q.Write(1, "A")
	q.Write(1, "B")
	q.WriteUrgent(1, "C")

	want := []string{"C", "A", "B"}
	for _, w := range want {
		_, payload := q.Read()
		if payload.(string) != w {
			t.Fatalf("got %v, want %s", payload, w)
		}
	}
}

func TestUrgentLIFOAmongThemselves(t *testing.T) {
	q := NewQueue()

	q.Write(1, "old")
	q.WriteUrgent(1, "u1")
	q.WriteUrgent(1, "u2")
	q.WriteUrgent(1, "u3")

	want := []string{"u3", "u2", "u1", "old"}
	for _, w := range want {
		_, payload := q.Read()
		if payload.(string) != w {
			t.Fatalf("got %v, want %s", payload, w)
		}
	}
}

func TestReadTypeOvertakesOtherTypes(t *testing.T) {
	q := NewQueue()

	q.Write(1, "P1")
	q.Write(2, "P2")
	q.Write(1, "P3")

	if got := q.ReadType(2); got.(string) != "P2" {
		t.Fatalf("typed read got %v, want P2", got)
	}

	// The remainder keeps its relative order.
	if _, got := q.Read(); got.(string) != "P1" {
		t.Fatalf("got %v, want P1", got)
	}
	if _, got := q.Read(); got.(string) != "P3" {
		t.Fatalf("got %v, want P3", got)
	}
}

func TestReadTypeRemovesTail(t *testing.T) {
	q := NewQueue()

	q.Write(1, "P1")
	q.Write(2, "P2")

	// Popping the tail must leave a consistent queue behind.
	if got := q.ReadType(2); got.(string) != "P2" {
		t.Fatalf("typed read got %v", got)
	}

	q.Write(3, "P3")
	if _, got := q.Read(); got.(string) != "P1" {
		t.Fatalf("got %v, want P1", got)
	}
	if _, got := q.Read(); got.(string) != "P3" {
		t.Fatalf("got %v, want P3", got)
	}
	if _, _, ok := q.Poll(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestPollVariants(t *testing.T) {
	q := NewQueue()

	if _, _, ok := q.Poll(); ok {
		t.Fatal("poll on empty queue succeeded")
	}
	if _, ok := q.PollType(7); ok {
		t.Fatal("typed poll on empty queue succeeded")
	}

	q.Write(7, "x")

	if _, ok := q.PollType(3); ok {
		t.Fatal("typed poll matched wrong type")
	}
	payload, ok := q.PollType(7)
	if !ok || payload.(string) != "x" {
		t.Fatalf("typed poll got %v %v", payload, ok)
	}
}

func TestReadReturnsTypeAndPayload(t *testing.T) {
	q := NewQueue()
	q.Write(42, "hello")

	msgType, payload := q.Read()
	if msgType != 42 || payload.(string) != "hello" {
		t.Fatalf("got type %d payload %v", msgType, payload)
	}
}

func TestBlockingReadWakesOnWrite(t *testing.T) {
	q := NewQueue()

	got := make(chan interface{}, 1)
	go func() {
		got <- q.ReadType(5)
	}()

	// Let the reader park, then satisfy it with an interleaved type.
	time.Sleep(10 * time.Millisecond)
	q.Write(1, "noise")
	q.Write(5, "signal")

	select {
	case payload := <-got:
		if payload.(string) != "signal" {
			t.Fatalf("got %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("typed reader never woke up")
	}

	if _, payload, ok := q.Poll(); !ok || payload.(string) != "noise" {
		t.Fatalf("noise message lost: %v %v", payload, ok)
	}
}

func TestConcurrentWritersSingleReader(t *testing.T) {
	q := NewQueue()
	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Write(uint32(id), id)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int]int)
	for i := 0; i < writers*perWriter; i++ {
		_, payload := q.Read()
		seen[payload.(int)]++
	}

	for w := 0; w < writers; w++ {
		if seen[w] != perWriter {
			t.Fatalf("writer %d: saw %d messages, want %d", w, seen[w], perWriter)
		}
	}
}

func TestFinalizeDrainsAndRejectsWrites(t *testing.T) {
	q := NewQueue()
	q.Write(1, "a")
	q.Write(1, "b")

	q.Finalize()

	if err := q.Write(1, "c"); err != ErrFinalized {
		t.Fatalf("write after finalize: %v", err)
	}
	if err := q.WriteUrgent(1, "c"); err != ErrFinalized {
		t.Fatalf("urgent write after finalize: %v", err)
	}
	if _, _, ok := q.Poll(); ok {
		t.Fatal("finalized queue still holds messages")
	}
}

func TestMessagePoolRecyclesHeaders(t *testing.T) {
	UseMessagePool(true)
	defer UseMessagePool(false)

	q := NewQueue()
	for i := 0; i < 32; i++ {
		q.Write(1, i)
	}
	for i := 0; i < 32; i++ {
		q.Read()
	}

	msgPool.mu.Lock()
	size := msgPool.size
	msgPool.mu.Unlock()

	if size == 0 {
		t.Fatal("free list empty after returns")
	}
	if size > poolMaxSize {
		t.Fatalf("free list %d exceeds cap %d", size, poolMaxSize)
	}

	// Allocation must pull from the free list.
	q.Write(1, "x")
	msgPool.mu.Lock()
	after := msgPool.size
	msgPool.mu.Unlock()
	if after != size-1 {
		t.Fatalf("alloc did not pop free list: %d -> %d", size, after)
	}
}
