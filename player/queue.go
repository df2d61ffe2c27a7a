package player

import (
	"io"
	"sync"
)

// pcmQueue is a bounded PCM byte ring between the socket and the audio
// device. Writes drop the oldest audio once the cap is reached, reads
// block until data arrives or the queue is closed.
type pcmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	cap    int
	closed bool
}

func newPCMQueue(fixedCap int) *pcmQueue {
	q := &pcmQueue{
		buf: make([]byte, 0, fixedCap),
		cap: fixedCap,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *pcmQueue) Write(data []byte) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return len(data)
	}
	if len(data) > q.cap {
		dropped += len(data) - q.cap
		data = data[len(data)-q.cap:]
	}
	if overflow := len(q.buf) + len(data) - q.cap; overflow > 0 {
		q.buf = q.buf[overflow:]
		dropped += overflow
	}
	q.buf = append(q.buf, data...)
	q.cond.Signal()
	return dropped
}

func (q *pcmQueue) Read(p []byte) (n int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return 0, io.EOF
	}
	n = copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *pcmQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Reset discards all buffered audio and reports how much was dropped.
func (q *pcmQueue) Reset() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	q.buf = q.buf[:0]
	return n
}

// Close wakes blocked readers; they drain what is left and then get EOF.
func (q *pcmQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
