package mq

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// message is the fixed-size queue header. Payloads are never pooled,
// only headers.
type message struct {
	msgType uint32
	payload interface{}
	next    *message

	freeNext *message
}

const (
	// poolWarningThreshold controls how often free-list growth is
	// reported: a warning fires whenever the peak crosses a multiple
	// of this value.
	poolWarningThreshold = 1024

	// poolMaxSize caps the free list. Headers returned beyond the cap
	// are left to the garbage collector instead of growing the list
	// to the worst backlog ever seen.
	poolMaxSize = 4096
)

var msgPool struct {
	mu      sync.Mutex
	enabled bool
	free    *message
	size    int
	peak    int
}

// UseMessagePool toggles free-list pooling of message headers. Safe to
// call at startup, before queues are in use.
func UseMessagePool(enable bool) {
	msgPool.mu.Lock()
	msgPool.enabled = enable
	if !enable {
		msgPool.free = nil
		msgPool.size = 0
	}
	msgPool.mu.Unlock()
}

func allocMessage() *message {
	var msg *message

	msgPool.mu.Lock()
	if msgPool.enabled && msgPool.free != nil {
		msg = msgPool.free
		msgPool.free = msg.freeNext
		msgPool.size--
	}
	msgPool.mu.Unlock()

	if msg == nil {
		msg = &message{}
	} else {
		msg.freeNext = nil
	}

	return msg
}

func returnMessage(msg *message) {
	msg.payload = nil
	msg.next = nil

	newPeak := -1

	msgPool.mu.Lock()
	if !msgPool.enabled || msgPool.size >= poolMaxSize {
		msgPool.mu.Unlock()
		return
	}

	msg.freeNext = msgPool.free
	msgPool.free = msg
	msgPool.size++
	if msgPool.size > msgPool.peak {
		msgPool.peak = msgPool.size
		newPeak = msgPool.peak
	}
	msgPool.mu.Unlock()

	// Log outside the pool lock.
	if newPeak > 0 && newPeak%poolWarningThreshold == 0 {
		log.Warn().Int("peak", newPeak).Msg("message pool freelist grew")
	}
}
