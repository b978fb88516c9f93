package transport

import (
	"bytes"
	"errors"
	"fmt"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/kex"
	"sshcore/infrastructure/ssh/wire"
	"strings"
)

// handle routes one decrypted packet.
func (c *Connection) handle(payload []byte, seq uint32) (transport.Action, error) {
	msg := payload[0]
	if transport.IsAlwaysPermitted(msg) {
		return c.handlePermitted(payload)
	}
	if c.round != nil && c.round.peerInit {
		return c.handleExchange(payload)
	}
	switch {
	case msg == transport.MsgKexInit:
		return c.handleKexInit(payload)
	case msg == transport.MsgNewKeys || transport.IsKexMessage(msg):
		return c.fail(fmt.Errorf("%w: message %d outside key exchange", transport.ErrProtocol, msg))
	case !c.established:
		return c.fail(fmt.Errorf("%w: message %d before key exchange", transport.ErrProtocol, msg))
	case c.round != nil:
		return c.deferPacket(payload, seq)
	}
	return c.dispatch(payload, seq)
}

// maxDeferredBytes bounds the service payloads a peer may send between our
// KEXINIT and its own.
const maxDeferredBytes = 1 << 20

func (c *Connection) deferPacket(payload []byte, seq uint32) (transport.Action, error) {
	c.deferredBytes += len(payload)
	if c.deferredBytes > maxDeferredBytes {
		return c.fail(fmt.Errorf("%w: more than %d bytes of service messages during key exchange",
			transport.ErrProtocol, maxDeferredBytes))
	}
	c.deferred = append(c.deferred, deferredPacket{payload: bytes.Clone(payload), seq: seq})
	return transport.Continue, nil
}

// handlePermitted processes the messages valid in every state.
func (c *Connection) handlePermitted(payload []byte) (transport.Action, error) {
	switch payload[0] {
	case transport.MsgDisconnect:
		return c.remoteDisconnect(payload)
	case transport.MsgDebug:
		c.debug(payload)
	case transport.MsgUnimplemented:
		c.unimplemented(payload)
	}
	return transport.Continue, nil
}

// dispatch delivers a packet received while ServiceActive.
func (c *Connection) dispatch(payload []byte, seq uint32) (transport.Action, error) {
	msg := payload[0]
	switch msg {
	case transport.MsgServiceRequest:
		return c.serviceRequest(payload)
	case transport.MsgServiceAccept:
		return c.serviceAccept(payload)
	case transport.MsgExtInfo:
		return c.extensionInfo(payload)
	}
	if transport.IsTransportMessage(msg) {
		return c.sendUnimplemented(seq)
	}
	if c.service == nil {
		return c.fail(fmt.Errorf("%w: message %d without an active service", transport.ErrProtocol, msg))
	}
	handled, err := c.service.ProcessMessage(payload)
	if err != nil {
		if !errors.Is(err, transport.ErrService) {
			return c.fail(err)
		}
		c.logger.Printf("service: %v", err)
	}
	if !handled {
		return c.sendUnimplemented(seq)
	}
	return transport.Continue, nil
}

func (c *Connection) serviceRequest(payload []byte) (transport.Action, error) {
	if c.isClient || c.service != nil {
		return c.fail(fmt.Errorf("%w: unexpected SERVICE_REQUEST", transport.ErrProtocol))
	}
	d := wire.NewDecoder(payload[1:])
	name := d.Text()
	if err := d.Err(); err != nil {
		return c.fail(fmt.Errorf("%w: malformed SERVICE_REQUEST: %v", transport.ErrProtocol, err))
	}
	factory, ok := c.cfg.Services[name]
	if !ok {
		return c.fail(&transport.DisconnectError{
			Reason:  transport.ReasonServiceNotAvailable,
			Message: fmt.Sprintf("service %q not available", name),
			Err:     transport.ErrServiceNotAvailable,
		})
	}
	if _, err := c.writePacket(serviceAcceptPayload(name)); err != nil {
		return c.fail(err)
	}
	c.logger.Printf("service %q accepted", name)
	c.attach(factory())
	return transport.Continue, nil
}

func (c *Connection) serviceAccept(payload []byte) (transport.Action, error) {
	if !c.isClient || c.requested == "" {
		return c.fail(fmt.Errorf("%w: unexpected SERVICE_ACCEPT", transport.ErrProtocol))
	}
	d := wire.NewDecoder(payload[1:])
	name := d.Text()
	if err := d.Err(); err != nil {
		return c.fail(fmt.Errorf("%w: malformed SERVICE_ACCEPT: %v", transport.ErrProtocol, err))
	}
	if name != c.requested {
		return c.fail(fmt.Errorf("%w: accepted service %q, requested %q", transport.ErrProtocol, name, c.requested))
	}
	c.requested = ""
	c.attach(c.cfg.Service)
	return transport.Continue, nil
}

// extensionInfo records RFC 8308 extensions. A later EXT_INFO replaces
// values of the same name.
func (c *Connection) extensionInfo(payload []byte) (transport.Action, error) {
	d := wire.NewDecoder(payload[1:])
	n := d.Uint32()
	ext := make(map[string]string)
	for i := uint32(0); i < n && d.Err() == nil; i++ {
		name := d.Text()
		ext[name] = string(d.String())
	}
	if err := d.Err(); err != nil {
		return c.fail(fmt.Errorf("%w: malformed EXT_INFO: %v", transport.ErrProtocol, err))
	}
	c.infoMu.Lock()
	for k, v := range ext {
		c.extensions[k] = v
	}
	c.infoMu.Unlock()
	return transport.Continue, nil
}

func (c *Connection) remoteDisconnect(payload []byte) (transport.Action, error) {
	d := wire.NewDecoder(payload[1:])
	reason := transport.DisconnectReason(d.Uint32())
	message := d.Text()
	err := &transport.DisconnectError{Reason: reason, Message: sanitize(message), Remote: true}
	c.logger.Printf("%v", err)
	c.terminate(err)
	return transport.Close, err
}

func (c *Connection) debug(payload []byte) {
	d := wire.NewDecoder(payload[1:])
	always := d.Bool()
	message := d.Text()
	if d.Err() == nil && always {
		c.logger.Printf("peer debug: %s", sanitize(message))
	}
}

func (c *Connection) unimplemented(payload []byte) {
	d := wire.NewDecoder(payload[1:])
	seq := d.Uint32()
	if d.Err() == nil {
		c.logger.Printf("peer did not implement packet %d", seq)
	}
}

func (c *Connection) sendUnimplemented(seq uint32) (transport.Action, error) {
	p := wire.NewEncoder(5).Byte(transport.MsgUnimplemented).Uint32(seq).Bytes()
	if _, err := c.writePacket(p); err != nil {
		return c.fail(err)
	}
	return transport.Continue, nil
}

func disconnectPayload(reason transport.DisconnectReason, message string) []byte {
	return wire.NewEncoder(16 + len(message)).
		Byte(transport.MsgDisconnect).
		Uint32(uint32(reason)).
		Text(message).
		Text("").
		Bytes()
}

func serviceRequestPayload(name string) []byte {
	return wire.NewEncoder(5 + len(name)).Byte(transport.MsgServiceRequest).Text(name).Bytes()
}

func serviceAcceptPayload(name string) []byte {
	return wire.NewEncoder(5 + len(name)).Byte(transport.MsgServiceAccept).Text(name).Bytes()
}

// serverExtInfo advertises the signature algorithms accepted for user
// authentication.
func serverExtInfo() []byte {
	return wire.NewEncoder(128).
		Byte(transport.MsgExtInfo).
		Uint32(1).
		Text("server-sig-algs").
		Text(strings.Join(kex.DefaultHostKeyAlgorithms, ",")).
		Bytes()
}

// sanitize keeps peer supplied text printable before it reaches a log.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '?'
		}
		return r
	}, s)
}
