package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by [FrameQueue.Push] after [FrameQueue.Close].
var ErrQueueClosed = errors.New("audio: frame queue closed")

// FrameQueue is a bounded FIFO between the capture goroutine and the
// segmenter. Push blocks while the queue is full, which applies backpressure
// to the capture side instead of dropping audio.
type FrameQueue struct {
	ch     chan Frame
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

// NewFrameQueue returns a queue holding at most size frames. A size below 1
// is treated as 1.
func NewFrameQueue(size int) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{
		ch:     make(chan Frame, size),
		closed: make(chan struct{}),
	}
}

// Push enqueues f, blocking until there is room, ctx is done, or the queue
// is closed.
func (q *FrameQueue) Push(ctx context.Context, f Frame) error {
	// The read lock keeps Close from closing ch while a send is pending.
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- f:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frames returns the receive side of the queue. It is closed after [Close]
// once all buffered frames have been consumed.
func (q *FrameQueue) Frames() <-chan Frame { return q.ch }

// Len reports the number of buffered frames.
func (q *FrameQueue) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *FrameQueue) Cap() int { return cap(q.ch) }

// Close stops accepting frames. Blocked pushers return [ErrQueueClosed].
// Close is idempotent.
func (q *FrameQueue) Close() {
	q.once.Do(func() {
		close(q.closed)
		q.mu.Lock()
		close(q.ch)
		q.mu.Unlock()
	})
}
