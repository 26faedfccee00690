package audio

import (
	"sync/atomic"
	"time"
)

// FrameQueue is the bounded hand-off between the driver callback and the
// processing loop. Push never blocks: when the queue is full it evicts the
// oldest frame once and retries, then drops the new frame. Recent audio is
// worth more than complete audio for live speech.
type FrameQueue struct {
	ch chan Frame

	pushed  atomic.Uint64
	evicted atomic.Uint64
	dropped atomic.Uint64
}

// QueueStats represents frame queue statistics
type QueueStats struct {
	Capacity int    `json:"capacity"`
	Depth    int    `json:"depth"`
	Pushed   uint64 `json:"pushed"`
	Evicted  uint64 `json:"evicted"`
	Dropped  uint64 `json:"dropped"`
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan Frame, capacity)}
}

// Push enqueues f without blocking. It reports whether f was accepted.
func (q *FrameQueue) Push(f Frame) bool {
	select {
	case q.ch <- f:
		q.pushed.Add(1)
		return true
	default:
	}

	select {
	case <-q.ch:
		q.evicted.Add(1)
	default:
	}

	select {
	case q.ch <- f:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop waits up to timeout for the next frame.
func (q *FrameQueue) Pop(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-q.ch:
		return f, true
	case <-timer.C:
		return Frame{}, false
	}
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *FrameQueue) Cap() int {
	return cap(q.ch)
}

// GetStats returns current queue statistics
func (q *FrameQueue) GetStats() QueueStats {
	return QueueStats{
		Capacity: cap(q.ch),
		Depth:    len(q.ch),
		Pushed:   q.pushed.Load(),
		Evicted:  q.evicted.Load(),
		Dropped:  q.dropped.Load(),
	}
}
