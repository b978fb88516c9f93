package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"slices"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/codec"
	"sshcore/infrastructure/ssh/kex"
	"sshcore/infrastructure/ssh/negotiation"

	"golang.org/x/crypto/ssh"
)

// round is one key exchange, from our KEXINIT to the peer's NEWKEYS.
type round struct {
	local     *negotiation.KexInit
	localRaw  []byte
	remoteRaw []byte
	// peerInit is set once the peer's KEXINIT arrived; from then on only
	// key exchange messages are accepted.
	peerInit   bool
	algorithms transport.NegotiatedAlgorithms
	strategy   kex.Strategy
	// ignoreNext drops the packet sent under a wrong first_kex_packet_follows guess.
	ignoreNext  bool
	newKeysSent bool
	incoming    codec.DirectionKeys
}

func (r *round) wipe() {
	if r.strategy != nil {
		r.strategy.Wipe()
	}
	mem.ZeroAll(r.incoming.IV, r.incoming.Key, r.incoming.MACKey)
}

type letters struct{ iv, key, mac byte }

var (
	clientToServer = letters{kex.LetterIVClientToServer, kex.LetterKeyClientToServer, kex.LetterMACClientToServer}
	serverToClient = letters{kex.LetterIVServerToClient, kex.LetterKeyServerToClient, kex.LetterMACServerToClient}
)

// sendKexInit opens a round with our proposal.
func (c *Connection) sendKexInit() error {
	a := c.cfg.Settings.Algorithms
	kexList := a.Kex
	if c.isClient && !c.established {
		kexList = append(slices.Clone(kexList), kex.ExtInfoClient)
	}
	hostKeys := a.HostKey
	if !c.isClient {
		hostKeys = kex.HostKeyAlgorithms(a.HostKey, c.cfg.HostKeys)
	}
	ki, err := negotiation.NewKexInit(c.cfg.Rand, kexList, hostKeys, a.Ciphers, a.MACs, a.Compression)
	if err != nil {
		return err
	}
	raw := ki.Marshal()
	if _, err := c.writePacket(raw); err != nil {
		return err
	}
	c.round = &round{local: ki, localRaw: raw}
	if c.established {
		c.setState(transport.StateRekeying)
	} else {
		c.setState(transport.StateAlgorithmNegotiation)
	}
	return nil
}

func (c *Connection) startRekey(why string) (transport.Action, error) {
	if c.round != nil || c.State() != transport.StateServiceActive {
		return transport.Continue, nil
	}
	c.logger.Printf("starting key re-exchange (%s) after %d bytes", why, c.scheduler.Bytes())
	if err := c.sendKexInit(); err != nil {
		return c.fail(err)
	}
	return transport.Continue, nil
}

func (c *Connection) handleKexInit(payload []byte) (transport.Action, error) {
	remote, err := negotiation.ParseKexInit(payload)
	if err != nil {
		return c.fail(err)
	}
	if c.round == nil {
		if err := c.sendKexInit(); err != nil {
			return c.fail(err)
		}
	}
	r := c.round
	r.remoteRaw = bytes.Clone(payload)
	r.peerInit = true

	client, server := r.local, remote
	if !c.isClient {
		client, server = remote, r.local
	}
	algs, err := negotiation.NegotiateAll(client, server)
	if err != nil {
		return c.fail(err)
	}
	r.algorithms = algs
	r.ignoreNext = remote.FirstKexFollows && negotiation.WrongGuess(client, server)
	if !c.isClient && !c.established {
		c.extInfo = slices.Contains(remote.KexAlgorithms, kex.ExtInfoClient)
	}

	strategy, err := kex.New(algs.Kex)
	if err != nil {
		return c.fail(err)
	}
	r.strategy = strategy
	out, err := strategy.Start(c.kexParams(r))
	if err != nil {
		return c.fail(err)
	}
	if !c.established {
		c.setState(transport.StateKeyExchange)
	}
	c.logger.Printf("negotiated %s", algs)
	if err := c.writeAll(out); err != nil {
		return c.fail(err)
	}
	return transport.Continue, nil
}

func (c *Connection) kexParams(r *round) *kex.Params {
	p := &kex.Params{
		IsClient:         c.isClient,
		HostKeyAlgorithm: r.algorithms.HostKey,
		HostKeys:         c.cfg.HostKeys,
		Rand:             c.cfg.Rand,
		GroupExchange:    kex.DefaultGroupBounds,
		Groups:           c.cfg.Groups,
		RSAKey:           c.cfg.RSAKey,
	}
	if c.isClient {
		p.ClientVersion, p.ServerVersion = c.localVersion, c.remoteVersion
		p.ClientKexInit, p.ServerKexInit = r.localRaw, r.remoteRaw
	} else {
		p.ClientVersion, p.ServerVersion = c.remoteVersion, c.localVersion
		p.ClientKexInit, p.ServerKexInit = r.remoteRaw, r.localRaw
	}
	return p
}

// handleExchange processes a packet received between the peer's KEXINIT and
// its NEWKEYS.
func (c *Connection) handleExchange(payload []byte) (transport.Action, error) {
	r := c.round
	msg := payload[0]
	switch {
	case msg == transport.MsgNewKeys:
		if !r.newKeysSent {
			return c.fail(fmt.Errorf("%w: NEWKEYS before the key exchange completed", transport.ErrProtocol))
		}
		return c.handleNewKeys()
	case transport.IsKexMessage(msg):
		if r.ignoreNext {
			r.ignoreNext = false
			c.logger.Printf("discarding key exchange packet sent under a wrong guess")
			return transport.Continue, nil
		}
		if r.strategy.Done() {
			return c.fail(fmt.Errorf("%w: key exchange message %d after completion", transport.ErrProtocol, msg))
		}
		out, handled, err := r.strategy.ProcessMessage(payload)
		if err != nil {
			return c.fail(err)
		}
		if !handled {
			return c.fail(fmt.Errorf("%w: unexpected key exchange message %d", transport.ErrProtocol, msg))
		}
		if err := c.writeAll(out); err != nil {
			return c.fail(err)
		}
		if r.strategy.Done() {
			return c.exchangeDone()
		}
		return transport.Continue, nil
	default:
		return c.fail(fmt.Errorf("%w: message %d not allowed during key exchange", transport.ErrProtocol, msg))
	}
}

// exchangeDone sends NEWKEYS and switches outgoing keys.
func (c *Connection) exchangeDone() (transport.Action, error) {
	r := c.round
	s := r.strategy
	if c.isClient {
		if err := c.checkHostKey(s.HostKey()); err != nil {
			return c.fail(err)
		}
	}

	c.infoMu.Lock()
	if c.sessionID == nil {
		c.sessionID = bytes.Clone(s.ExchangeHash())
	}
	sessionID := c.sessionID
	c.infoMu.Unlock()

	outLetters, inLetters := clientToServer, serverToClient
	if !c.isClient {
		outLetters, inLetters = serverToClient, clientToServer
	}
	outAlg := r.algorithms.Outgoing(c.isClient)
	out, err := deriveKeys(s, outAlg, sessionID, outLetters)
	if err != nil {
		return c.fail(err)
	}
	defer mem.ZeroAll(out.IV, out.Key, out.MACKey)
	if r.incoming, err = deriveKeys(s, r.algorithms.Incoming(c.isClient), sessionID, inLetters); err != nil {
		return c.fail(err)
	}

	if _, err := c.writePacket([]byte{transport.MsgNewKeys}); err != nil {
		return c.fail(err)
	}
	if err := c.enc.Install(outAlg, out); err != nil {
		return c.fail(err)
	}
	r.newKeysSent = true
	if !c.established {
		c.setState(transport.StateAwaitingNewKeys)
		if !c.isClient && c.extInfo {
			if _, err := c.writePacket(serverExtInfo()); err != nil {
				return c.fail(err)
			}
		}
	}
	return transport.Continue, nil
}

func (c *Connection) checkHostKey(blob []byte) error {
	key, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrHostKeyRejected, err)
	}
	addr := c.cfg.RemoteAddr
	if addr == nil {
		addr = &net.TCPAddr{}
	}
	host := c.cfg.HostName
	if host == "" {
		host = addr.String()
	}
	if err := c.cfg.HostKeyCallback(host, addr, key); err != nil {
		if errors.Is(err, transport.ErrHostKeyRejected) {
			return err
		}
		return fmt.Errorf("%w: %v", transport.ErrHostKeyRejected, err)
	}
	return nil
}

// deriveKeys is replaced in tests to observe the keys of each round.
var deriveKeys = deriveDirectionKeys

func deriveDirectionKeys(s kex.Strategy, alg transport.DirectionAlgorithms, sessionID []byte, l letters) (codec.DirectionKeys, error) {
	sizes, err := codec.SizesFor(alg)
	if err != nil {
		return codec.DirectionKeys{}, err
	}
	h, k, hash := s.ExchangeHash(), s.Secret(), s.Hash()
	return codec.DirectionKeys{
		IV:     kex.DeriveKey(hash, k, h, l.iv, sessionID, sizes.IV),
		Key:    kex.DeriveKey(hash, k, h, l.key, sessionID, sizes.Key),
		MACKey: kex.DeriveKey(hash, k, h, l.mac, sessionID, sizes.MAC),
	}, nil
}

// handleNewKeys switches incoming keys and completes the round.
func (c *Connection) handleNewKeys() (transport.Action, error) {
	r := c.round
	err := c.dec.Install(r.algorithms.Incoming(c.isClient), r.incoming)
	mem.ZeroAll(r.incoming.IV, r.incoming.Key, r.incoming.MACKey)
	if err != nil {
		return c.fail(err)
	}
	r.strategy.Wipe()
	c.round = nil

	c.infoMu.Lock()
	c.algorithms = r.algorithms
	c.infoMu.Unlock()
	c.scheduler.Reset(c.cfg.Clock())
	first := !c.established
	c.established = true
	c.exchanges.Add(1)
	c.setState(transport.StateServiceActive)

	if first {
		c.logger.Printf("key exchange complete: %s", r.algorithms)
		if c.isClient && c.cfg.Service != nil {
			c.requested = c.cfg.Settings.Service
			if _, err := c.writePacket(serviceRequestPayload(c.requested)); err != nil {
				return c.fail(err)
			}
		}
	} else {
		c.logger.Printf("key re-exchange complete: %s", r.algorithms)
	}

	deferred := c.deferred
	c.deferred, c.deferredBytes = nil, 0
	for _, p := range deferred {
		if act, err := c.dispatch(p.payload, p.seq); act != transport.Continue || err != nil {
			return act, err
		}
	}
	return transport.Continue, nil
}
