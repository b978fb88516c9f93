// Package transport drives one SSH connection (RFC 4253): identification
// exchange, algorithm negotiation, key exchange, rekeying and dispatch of
// service messages.
//
// A Connection performs no I/O. Its owner feeds received bytes in, writes
// TakeOutput to the peer and acts on the returned Action. Apart from the
// methods documented as safe for concurrent use, a Connection belongs to the
// goroutine that owns it.
package transport

import (
	"errors"
	"fmt"
	"slices"
	"sshcore/application/logging"
	"sshcore/application/network/connection"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/codec"
	"sshcore/infrastructure/ssh/rekey"
	"sync"
	"sync/atomic"
	"time"
)

type Connection struct {
	cfg      Config
	isClient bool
	logger   logging.Logger
	state    atomic.Int32

	localVersion  []byte
	remoteVersion []byte
	versions      versionReader
	started       bool

	enc     *codec.Encoder
	dec     *codec.Decoder
	out     []byte
	scratch []byte

	round       *round
	established bool
	exchanges   atomic.Int32
	scheduler   *rekey.Scheduler
	// deferred holds service messages received after our KEXINIT but
	// before the peer's, bounded by maxDeferredBytes.
	deferred      []deferredPacket
	deferredBytes int

	service   connection.Service
	requested string
	extInfo   bool

	infoMu     sync.RWMutex
	sessionID  []byte
	algorithms transport.NegotiatedAlgorithms
	extensions map[string]string

	outbox   outbox
	err      error
	stopOnce sync.Once
}

type deferredPacket struct {
	payload []byte
	seq     uint32
}

// New validates cfg and returns a Connection in VersionExchange.
func New(cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := cfg.Settings
	c := &Connection{
		cfg:          cfg,
		isClient:     cfg.IsClient,
		logger:       cfg.Logger,
		localVersion: IdentificationLine(s.SoftwareVersion),
		versions:     versionReader{isClient: cfg.IsClient},
		enc:          codec.NewEncoder(cfg.Rand, s.MaxPacketSize),
		dec:          codec.NewDecoder(s.MaxPacketSize),
		scheduler:    rekey.NewScheduler(uint64(s.Rekey.Bytes), s.Rekey.Interval.Duration(), cfg.Clock()),
		extensions:   make(map[string]string),
	}
	c.outbox.wake = cfg.Wake
	c.setState(transport.StateVersionExchange)
	return c, nil
}

// Start emits the local identification line.
func (c *Connection) Start() error {
	if c.started {
		return errors.New("transport: connection already started")
	}
	c.started = true
	c.out = append(c.out, c.localVersion...)
	c.out = append(c.out, '\r', '\n')
	return nil
}

// Feed processes bytes received from the peer.
func (c *Connection) Feed(data []byte) (transport.Action, error) {
	if act, err, done := c.terminal(); done {
		return act, err
	}
	if !c.started {
		return transport.Close, errors.New("transport: Feed before Start")
	}
	if c.State() == transport.StateVersionExchange {
		line, rest, err := c.versions.read(data)
		if err != nil {
			return c.fail(err)
		}
		if line == nil {
			return transport.Continue, nil
		}
		c.remoteVersion = line
		c.logger.Printf("peer identification %q", line)
		if err := c.sendKexInit(); err != nil {
			return c.fail(err)
		}
		data = rest
	}
	c.dec.Feed(data)
	for {
		buffered := c.dec.Buffered()
		payload, seq, ok, err := c.dec.Next()
		if err != nil {
			return c.fail(err)
		}
		if !ok {
			break
		}
		c.scheduler.Count(buffered - c.dec.Buffered())
		if act, err := c.handle(payload, seq); act != transport.Continue || err != nil {
			return act, err
		}
	}
	return c.flush()
}

// Flush encodes queued service messages, applies pending disconnect and
// rekey requests and checks the rekey thresholds. The owner calls it when
// Wake fires and periodically.
func (c *Connection) Flush() (transport.Action, error) {
	if act, err, done := c.terminal(); done {
		return act, err
	}
	return c.flush()
}

// TakeOutput returns the bytes to write to the peer and forgets them.
func (c *Connection) TakeOutput() []byte {
	out := c.out
	c.out = nil
	return out
}

// HasOutput reports whether TakeOutput would return anything.
func (c *Connection) HasOutput() bool { return len(c.out) > 0 }

// Close moves the connection to Closed, stops the service and wipes keys.
// cause is kept as the terminal error unless one was already recorded.
// It returns the terminal error.
func (c *Connection) Close(cause error) error {
	if c.State() == transport.StateClosed {
		return c.err
	}
	if c.err == nil {
		if cause == nil {
			cause = transport.ErrClosed
		}
		c.err = cause
	}
	c.outbox.close()
	c.setState(transport.StateClosed)
	c.stopService(c.err)
	c.enc.Wipe()
	c.dec.Wipe()
	if c.round != nil {
		c.round.wipe()
		c.round = nil
	}
	c.deferred = nil
	c.deferredBytes = 0
	return c.err
}

// Err returns the terminal error, nil while the connection is alive.
func (c *Connection) Err() error { return c.err }

// State is safe for concurrent use.
func (c *Connection) State() transport.State {
	return transport.State(c.state.Load())
}

func (c *Connection) setState(s transport.State) {
	c.state.Store(int32(s))
}

func (c *Connection) IsClient() bool { return c.isClient }

// SessionID is safe for concurrent use. It is nil before the first key
// exchange completes.
func (c *Connection) SessionID() []byte {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return slices.Clone(c.sessionID)
}

// Algorithms returns the algorithms of the installed keys. Safe for
// concurrent use.
func (c *Connection) Algorithms() transport.NegotiatedAlgorithms {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.algorithms
}

// Extensions is safe for concurrent use.
func (c *Connection) Extensions() map[string]string {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	out := make(map[string]string, len(c.extensions))
	for k, v := range c.extensions {
		out[k] = v
	}
	return out
}

// KeyExchanges counts completed key exchanges, the initial one included.
func (c *Connection) KeyExchanges() int { return int(c.exchanges.Load()) }

// Enqueue is safe for concurrent use. Messages are encoded in FIFO order,
// never while a key exchange is running.
func (c *Connection) Enqueue(msg connection.OutboundMessage) error {
	if msg == nil {
		return errors.New("transport: nil message")
	}
	return c.outbox.push(queued{msg: msg})
}

// Disconnect is safe for concurrent use. The DISCONNECT goes out on the
// next Flush.
func (c *Connection) Disconnect(reason transport.DisconnectReason, message string) {
	c.outbox.requestDisconnect(reason, message)
}

// RequestRekey asks for a key re-exchange on the next Flush. Safe for
// concurrent use; applied once the connection is ServiceActive.
func (c *Connection) RequestRekey() {
	c.outbox.requestRekey()
}

// SwitchService attaches next in place of the current service. The previous
// service is not stopped.
func (c *Connection) SwitchService(next connection.Service) {
	c.attach(next)
}

// EnableDelayedCompression starts zlib@openssh.com: incoming packets
// immediately, outgoing ones after the messages already queued.
func (c *Connection) EnableDelayedCompression() {
	c.dec.EnableDelayedCompression()
	if err := c.outbox.push(queued{ctl: ctlDelayedCompression}); err != nil {
		c.logger.Printf("delayed compression: %v", err)
	}
}

// IdleTimeout is the inactivity the attached service asked for, 0 when the
// default threshold applies.
func (c *Connection) IdleTimeout() time.Duration {
	if c.service == nil {
		return 0
	}
	return time.Duration(c.service.IdleTimeoutSeconds()) * time.Second
}

// HandleIdle reports inactivity to the service. A connection without a
// service is disconnected.
func (c *Connection) HandleIdle() (transport.Action, error) {
	if act, err, done := c.terminal(); done {
		return act, err
	}
	if c.service == nil {
		return c.disconnect(transport.ReasonByApplication, "idle timeout")
	}
	c.service.Idle()
	return c.flush()
}

// SetRekeyLimits replaces the rekey thresholds of a running connection.
func (c *Connection) SetRekeyLimits(bytes uint64, interval time.Duration) {
	c.scheduler.SetLimits(bytes, interval, c.cfg.Clock())
}

func (c *Connection) terminal() (transport.Action, error, bool) {
	switch c.State() {
	case transport.StateDisconnecting:
		return transport.FlushAndClose, c.err, true
	case transport.StateClosed:
		if c.err != nil {
			return transport.Close, c.err, true
		}
		return transport.Close, transport.ErrClosed, true
	}
	return transport.Continue, nil, false
}

func (c *Connection) flush() (transport.Action, error) {
	if d := c.outbox.takeDisconnect(); d != nil {
		return c.disconnect(d.reason, d.message)
	}
	if c.State() != transport.StateServiceActive {
		return transport.Continue, nil
	}
	if c.outbox.takeRekey() {
		return c.startRekey("requested")
	}
	if c.scheduler.Due(c.cfg.Clock()) {
		return c.startRekey("threshold reached")
	}
	for c.round == nil {
		item, ok := c.outbox.head()
		if !ok {
			break
		}
		if item.ctl == ctlDelayedCompression {
			c.enc.EnableDelayedCompression()
			c.outbox.pop()
			continue
		}
		buf, done := item.msg.WriteInto(c.scratch[:0])
		seq, err := c.writePacket(buf)
		c.scratch = buf[:0]
		if err != nil {
			return c.fail(err)
		}
		if done {
			c.outbox.pop()
			item.msg.Sent(seq)
		}
		if c.scheduler.Due(c.cfg.Clock()) {
			return c.startRekey("threshold reached")
		}
	}
	return transport.Continue, nil
}

// writePacket encodes one payload under the current outgoing keys.
func (c *Connection) writePacket(payload []byte) (uint32, error) {
	packet, seq, err := c.enc.Encode(payload)
	if err != nil {
		return 0, err
	}
	c.out = append(c.out, packet...)
	c.scheduler.Count(len(packet))
	return seq, nil
}

func (c *Connection) writeAll(payloads [][]byte) error {
	for _, p := range payloads {
		if _, err := c.writePacket(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) attach(svc connection.Service) {
	c.service = svc
	svc.Init(c)
	svc.Start()
}

func (c *Connection) stopService(err error) {
	c.stopOnce.Do(func() {
		if c.service != nil {
			c.service.Stop(err)
		}
	})
}

// disconnect sends DISCONNECT for a locally requested close.
func (c *Connection) disconnect(reason transport.DisconnectReason, message string) (transport.Action, error) {
	err := &transport.DisconnectError{Reason: reason, Message: message}
	c.logger.Printf("disconnecting: %v", err)
	c.sendDisconnect(reason, message)
	c.terminate(err)
	return transport.FlushAndClose, err
}

// fail handles a fatal error: the peer is told why when it can still parse
// binary packets, then the connection winds down.
func (c *Connection) fail(err error) (transport.Action, error) {
	var de *transport.DisconnectError
	if !errors.As(err, &de) {
		de = &transport.DisconnectError{Reason: transport.ReasonFor(err), Message: err.Error(), Err: err}
	}
	c.logger.Printf("connection failed: %v", err)
	if c.started {
		c.sendDisconnect(de.Reason, de.Message)
	}
	c.terminate(de)
	return transport.FlushAndClose, de
}

func (c *Connection) terminate(err error) {
	if c.err == nil {
		c.err = err
	}
	c.outbox.close()
	c.setState(transport.StateDisconnecting)
	c.stopService(err)
}

func (c *Connection) sendDisconnect(reason transport.DisconnectReason, message string) {
	if _, err := c.writePacket(disconnectPayload(reason, message)); err != nil {
		c.logger.Printf("failed to encode DISCONNECT: %v", err)
	}
}

func (c *Connection) String() string {
	role := "server"
	if c.isClient {
		role = "client"
	}
	return fmt.Sprintf("%s connection (%s)", role, c.State())
}
