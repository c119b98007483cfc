package mq

import (
	"errors"
	"sync"
)

// ErrFinalized is returned by writes against a queue that has already
// been torn down.
var ErrFinalized = errors.New("mq: queue finalized")

// Queue is a linked FIFO of typed payloads shared between threads.
// Readers may block until a message (optionally of a specific type)
// becomes available; urgent writes jump to the front of the queue so
// control responses overtake bulk traffic.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	head *message
	tail *message

	finalized bool
}

// NewQueue allocates and initializes a queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.Init()
	return q
}

// Init prepares a zero-value queue for use.
func (q *Queue) Init() {
	q.cond = sync.NewCond(&q.mu)
	q.head = nil
	q.tail = nil
	q.finalized = false
}

func (q *Queue) pushFront(msg *message) {
	msg.next = q.head
	q.head = msg

	if q.tail == nil {
		q.tail = msg
	}
}

func (q *Queue) push(msg *message) {
	if q.tail != nil {
		q.tail.next = msg
	}
	q.tail = msg

	if q.head == nil {
		q.head = msg
	}
}

func (q *Queue) pop() *message {
	msg := q.head
	if msg == nil {
		return nil
	}

	q.head = msg.next
	if q.head == nil {
		q.tail = nil
	}

	msg.next = nil
	return msg
}

// popType unlinks the first message of exactly the given type,
// preserving the relative order of everything else.
func (q *Queue) popType(msgType uint32) *message {
	var prev *message
	cur := q.head

	for cur != nil {
		if cur.msgType == msgType {
			break
		}
		prev = cur
		cur = cur.next
	}

	if cur != nil {
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}

		if cur == q.tail {
			q.tail = prev
		}

		cur.next = nil
	}

	return cur
}

// Write appends a message and wakes every waiter.
func (q *Queue) Write(msgType uint32, payload interface{}) error {
	msg := allocMessage()
	msg.msgType = msgType
	msg.payload = payload

	q.mu.Lock()
	if q.finalized {
		q.mu.Unlock()
		returnMessage(msg)
		return ErrFinalized
	}
	q.push(msg)
	q.cond.Broadcast()
	q.mu.Unlock()

	return nil
}

// WriteUrgent prepends a message and wakes every waiter. Urgent
// messages are read before any pending regular message; concurrent
// urgent writes come out latest-first.
func (q *Queue) WriteUrgent(msgType uint32, payload interface{}) error {
	msg := allocMessage()
	msg.msgType = msgType
	msg.payload = payload

	q.mu.Lock()
	if q.finalized {
		q.mu.Unlock()
		returnMessage(msg)
		return ErrFinalized
	}
	q.pushFront(msg)
	q.cond.Broadcast()
	q.mu.Unlock()

	return nil
}

// Read blocks until a message is available and returns its type and
// payload.
func (q *Queue) Read() (uint32, interface{}) {
	q.mu.Lock()
	var msg *message
	for msg = q.pop(); msg == nil; msg = q.pop() {
		q.cond.Wait()
	}
	q.mu.Unlock()

	msgType, payload := msg.msgType, msg.payload
	returnMessage(msg)
	return msgType, payload
}

// ReadType blocks until a message of exactly msgType is available and
// returns its payload. Messages of other types are left untouched, in
// order.
func (q *Queue) ReadType(msgType uint32) interface{} {
	q.mu.Lock()
	var msg *message
	for msg = q.popType(msgType); msg == nil; msg = q.popType(msgType) {
		q.cond.Wait()
	}
	q.mu.Unlock()

	payload := msg.payload
	returnMessage(msg)
	return payload
}

// Poll is the non-blocking form of Read.
func (q *Queue) Poll() (uint32, interface{}, bool) {
	q.mu.Lock()
	msg := q.pop()
	q.mu.Unlock()

	if msg == nil {
		return 0, nil, false
	}

	msgType, payload := msg.msgType, msg.payload
	returnMessage(msg)
	return msgType, payload, true
}

// PollType is the non-blocking form of ReadType.
func (q *Queue) PollType(msgType uint32) (interface{}, bool) {
	q.mu.Lock()
	msg := q.popType(msgType)
	q.mu.Unlock()

	if msg == nil {
		return nil, false
	}

	payload := msg.payload
	returnMessage(msg)
	return payload, true
}

// Finalize drains the queue and marks it dead. Subsequent writes fail
// with ErrFinalized. Callers must guarantee no reader is blocked on the
// queue by the time Finalize runs.
func (q *Queue) Finalize() {
	q.mu.Lock()
	q.finalized = true
	for msg := q.pop(); msg != nil; msg = q.pop() {
		returnMessage(msg)
	}
	q.mu.Unlock()
}
