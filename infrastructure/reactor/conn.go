package reactor

import (
	"net"
	"sshcore/application/logging"
	sshTransport "sshcore/infrastructure/ssh/transport"
	"sshcore/infrastructure/telemetry/trafficstats"
	"sync/atomic"
	"time"
)

// maxInflightReads bounds the reads of one connection waiting for its worker.
const maxInflightReads = 4

// Conn is one socket driven by a Reactor. Transport exposes the SSH
// connection; only its methods documented as safe for concurrent use may be
// called from outside the reactor.
type Conn struct {
	r        *Reactor
	box      *mailbox
	nc       net.Conn
	t        *sshTransport.Connection
	logger   logging.Logger
	out      *outq
	inflight chan struct{}

	// timeout caches the service idle timeout, refreshed by the worker
	// after every event.
	timeout     atomic.Int64
	wakePending atomic.Bool

	// finished is owned by the worker.
	finished bool
	done     chan struct{}
	err      error
}

func (c *Conn) Transport() *sshTransport.Connection { return c.t }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the terminal error. It is only meaningful after Done is closed.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the connection is torn down and returns its terminal error.
func (c *Conn) Wait() error {
	<-c.done
	return c.err
}

// Idle implements idle.Listener. The idle callback itself runs on the
// connection's worker.
func (c *Conn) Idle(inactive time.Duration) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	if t := time.Duration(c.timeout.Load()); t > 0 && inactive < t {
		return false
	}
	c.box.post(event{conn: c, kind: evIdle})
	return false
}

func (c *Conn) wake() {
	if c.wakePending.CompareAndSwap(false, true) {
		c.box.post(event{conn: c, kind: evWake})
	}
}

func (c *Conn) readLoop(bufSize int, rec *trafficstats.Recorder) {
	defer rec.Flush()
	for {
		if !c.out.waitWritable() {
			return
		}
		buf := make([]byte, bufSize)
		n, err := c.nc.Read(buf)
		rec.Record(n)
		if n > 0 {
			select {
			case c.inflight <- struct{}{}:
			case <-c.done:
				return
			}
			c.box.post(event{conn: c, kind: evRead, data: buf[:n]})
		}
		if err != nil {
			c.box.post(event{conn: c, kind: evReadErr, err: err})
			return
		}
	}
}

func (c *Conn) writeLoop(rec *trafficstats.Recorder) {
	defer rec.Flush()
	for {
		select {
		case <-c.out.signal:
		case <-c.done:
			return
		}
		for {
			bufs, closing := c.out.take()
			if len(bufs) == 0 {
				if closing {
					_ = c.nc.Close()
					return
				}
				break
			}
			for _, b := range bufs {
				n, err := c.nc.Write(b)
				rec.Record(n)
				if err != nil {
					c.box.post(event{conn: c, kind: evWriteErr, err: err})
					return
				}
				if c.out.written(len(b)) {
					c.box.post(event{conn: c, kind: evDrained})
				}
			}
		}
	}
}
