package transport

import (
	"sshcore/application/network/connection"
	"sshcore/domain/transport"
	"sync"
)

type control int

const (
	ctlNone control = iota
	// ctlDelayedCompression switches the encoder to zlib@openssh.com
	// between the messages queued before and after it.
	ctlDelayedCompression
)

type queued struct {
	msg connection.OutboundMessage
	ctl control
}

type disconnectRequest struct {
	reason  transport.DisconnectReason
	message string
}

// outbox is the part of a Connection other goroutines may touch.
type outbox struct {
	mu         sync.Mutex
	items      []queued
	disconnect *disconnectRequest
	rekey      bool
	closed     bool
	wake       func()
}

func (o *outbox) push(q queued) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return transport.ErrClosed
	}
	o.items = append(o.items, q)
	o.mu.Unlock()
	o.notify()
	return nil
}

func (o *outbox) requestDisconnect(reason transport.DisconnectReason, message string) {
	o.mu.Lock()
	if o.closed || o.disconnect != nil {
		o.mu.Unlock()
		return
	}
	o.disconnect = &disconnectRequest{reason: reason, message: message}
	o.mu.Unlock()
	o.notify()
}

func (o *outbox) requestRekey() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.rekey = true
	o.mu.Unlock()
	o.notify()
}

func (o *outbox) notify() {
	if o.wake != nil {
		o.wake()
	}
}

// takeDisconnect returns and clears a pending disconnect request.
func (o *outbox) takeDisconnect() *disconnectRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.disconnect
	o.disconnect = nil
	return d
}

func (o *outbox) takeRekey() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.rekey
	o.rekey = false
	return r
}

// head returns the first queued item without removing it. Only the owning
// goroutine pops, so the head stays stable between head and pop.
func (o *outbox) head() (queued, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return queued{}, false
	}
	return o.items[0], true
}

func (o *outbox) pop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return
	}
	o.items[0] = queued{}
	o.items = o.items[1:]
}

// close discards everything still queued and refuses new items.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.items = nil
	o.disconnect = nil
	o.rekey = false
}
