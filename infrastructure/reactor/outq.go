package reactor

import "sync"

// outq holds encoded bytes waiting for the writer goroutine. Crossing the
// high watermark throttles the connection: its reader stops reading and the
// worker stops flushing service messages until the backlog falls to the low
// watermark.
type outq struct {
	mu        sync.Mutex
	cond      *sync.Cond
	bufs      [][]byte
	backlog   int
	high, low int
	throttled bool
	// closing asks the writer to close the socket once bufs is empty.
	closing bool
	closed  bool
	signal  chan struct{}
}

func newOutq(high, low int) *outq {
	q := &outq{high: high, low: low, signal: make(chan struct{}, 1)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *outq) push(b []byte) {
	q.mu.Lock()
	q.bufs = append(q.bufs, b)
	q.backlog += len(b)
	if q.backlog >= q.high {
		q.throttled = true
	}
	q.mu.Unlock()
	q.notify()
}

func (q *outq) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *outq) take() (bufs [][]byte, closing bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	bufs = q.bufs
	q.bufs = nil
	return bufs, q.closing
}

// written accounts for n bytes handed to the socket and reports whether
// this lifted the throttle.
func (q *outq) written(n int) (drained bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.backlog -= n
	if q.throttled && q.backlog <= q.low {
		q.throttled = false
		q.cond.Broadcast()
		return true
	}
	return false
}

func (q *outq) isThrottled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.throttled
}

// waitWritable blocks while the queue is throttled. It returns false once
// the queue is shut down.
func (q *outq) waitWritable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.throttled && !q.closed {
		q.cond.Wait()
	}
	return !q.closed
}

func (q *outq) closeWhenDrained() {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()
	q.notify()
}

func (q *outq) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.bufs = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	q.notify()
}
