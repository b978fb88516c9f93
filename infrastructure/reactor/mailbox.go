package reactor

import "sync"

type eventKind int

const (
	evStart eventKind = iota
	evRead
	evReadErr
	evWriteErr
	evWake
	evTick
	evDrained
	evIdle
	evStop
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evRead:
		return "read"
	case evReadErr:
		return "read error"
	case evWriteErr:
		return "write error"
	case evWake:
		return "wake"
	case evTick:
		return "tick"
	case evDrained:
		return "drained"
	case evIdle:
		return "idle"
	case evStop:
		return "stop"
	default:
		return "unknown"
	}
}

type event struct {
	conn *Conn
	kind eventKind
	data []byte
	err  error
}

// mailbox is the unbounded event queue of one worker. Posting never blocks,
// so a service enqueueing from inside ProcessMessage cannot deadlock its
// own worker.
type mailbox struct {
	mu     sync.Mutex
	events []event
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.events
	m.events = nil
	return evs
}
