package signaling

import (
	"errors"
	"sync"
)

var (
	errQueueClosed = errors.New("send queue closed")
	errQueueFull   = errors.New("send queue full")
)

// sendQueue is a byte-bounded FIFO of encoded frames.
//
// Enqueue never blocks, so the relay can deliver while holding its lock.
// Close discards pending frames; Drain lets the writer flush them first.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	closed   bool
	draining bool

	maxBytes int
	curBytes int
	frames   [][]byte
}

func newSendQueue(maxBytes int) *sendQueue {
	q := &sendQueue{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends frame if it fits within the byte budget.
func (q *sendQueue) Enqueue(frame []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.draining {
		return errQueueClosed
	}
	if q.curBytes+len(frame) > q.maxBytes {
		return errQueueFull
	}
	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks until a frame is available. It returns false once the queue
// is closed, or drained and empty.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed && !q.draining {
		q.notEmpty.Wait()
	}
	if q.closed || len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	q.curBytes -= len(frame)
	return frame, true
}

// Drain stops accepting frames; Dequeue keeps returning the ones already
// queued.
func (q *sendQueue) Drain() {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Close stops the queue and drops anything pending.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.curBytes = 0
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Len returns the number of queued bytes.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.curBytes
}
