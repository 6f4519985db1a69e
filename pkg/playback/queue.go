// ABOUTME: FIFO jitter buffer for decoded chunks
// ABOUTME: Chunks leave in arrival order
package playback

import (
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

// BufferQueue is a FIFO of decoded buffers
type BufferQueue struct {
	items []audio.Buffer
	head  int
}

// NewBufferQueue creates an empty queue
func NewBufferQueue() *BufferQueue {
	return &BufferQueue{}
}

// Len returns the number of queued buffers
func (q *BufferQueue) Len() int { return len(q.items) - q.head }

// Push appends a buffer
func (q *BufferQueue) Push(buf audio.Buffer) {
	q.items = append(q.items, buf)
}

// Peek returns the oldest buffer without removing it
func (q *BufferQueue) Peek() (audio.Buffer, bool) {
	if q.Len() == 0 {
		return audio.Buffer{}, false
	}
	return q.items[q.head], true
}

// Pop removes and returns the oldest buffer
func (q *BufferQueue) Pop() (audio.Buffer, bool) {
	buf, ok := q.Peek()
	if !ok {
		return buf, false
	}
	q.items[q.head] = audio.Buffer{}
	q.head++

	// Compact once the consumed prefix dominates
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return buf, true
}

// Duration returns the total queued playback time
func (q *BufferQueue) Duration() time.Duration {
	var total time.Duration
	for _, buf := range q.items[q.head:] {
		total += buf.Duration()
	}
	return total
}

// Clear drops every queued buffer
func (q *BufferQueue) Clear() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}
