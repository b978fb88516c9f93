package kex

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/wire"
)

// exponentBits bounds DH private exponents; twice the strongest hash in use.
const exponentBits = 512

// modp is one side of a finite field Diffie-Hellman exchange.
type modp struct {
	group *Group
	x     *big.Int
	pub   *big.Int
}

func (m *modp) generate(random io.Reader) error {
	bits := exponentBits
	if pb := m.group.P.BitLen() - 1; pb < bits {
		bits = pb
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	for {
		x, err := rand.Int(random, limit)
		if err != nil {
			return fmt.Errorf("%w: generate DH exponent: %v", transport.ErrKeyExchange, err)
		}
		if x.Cmp(big.NewInt(1)) > 0 {
			m.x = x
			break
		}
	}
	m.pub = new(big.Int).Exp(m.group.G, m.x, m.group.P)
	return nil
}

func (m *modp) shared(peer *big.Int) (*big.Int, error) {
	if err := checkPublic(peer, m.group.P); err != nil {
		return nil, err
	}
	return new(big.Int).Exp(peer, m.x, m.group.P), nil
}

func (m *modp) wipe() {
	mem.ZeroInt(m.x)
}

// fixedGroup is diffie-hellman-group{1,14,16}-* of RFC 4253 and RFC 8268.
type fixedGroup struct {
	exchange
	dh modp
	e  *big.Int
	f  *big.Int
}

func newFixedGroup(g *Group, h crypto.Hash) *fixedGroup {
	return &fixedGroup{exchange: exchange{hash: h}, dh: modp{group: g}}
}

func (x *fixedGroup) Start(p *Params) ([][]byte, error) {
	x.params = p
	if !p.IsClient {
		return nil, nil
	}
	if err := x.dh.generate(x.random()); err != nil {
		return nil, err
	}
	x.e = x.dh.pub
	msg := wire.NewEncoder(x.dh.group.Bits()/8 + 16).
		Byte(transport.MsgKexDHInit).
		MPInt(x.e).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *fixedGroup) ProcessMessage(payload []byte) ([][]byte, bool, error) {
	if x.done {
		return nil, false, nil
	}
	if x.params.IsClient {
		if !expect(payload, transport.MsgKexDHReply) {
			return nil, false, nil
		}
		return nil, true, x.clientReply(payload)
	}
	if !expect(payload, transport.MsgKexDHInit) {
		return nil, false, nil
	}
	out, err := x.serverInit(payload)
	return out, true, err
}

func (x *fixedGroup) serverInit(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	e := d.MPInt()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEXDH_INIT", err)
	}
	if err := checkPublic(e, x.dh.group.P); err != nil {
		return nil, err
	}
	signer, err := x.prepareServer()
	if err != nil {
		return nil, err
	}
	if err := x.dh.generate(x.random()); err != nil {
		return nil, err
	}
	x.e, x.f = e, x.dh.pub
	if x.k, err = x.dh.shared(e); err != nil {
		return nil, err
	}
	x.digest(x.transcript().MPInt(x.e).MPInt(x.f).MPInt(x.k).Bytes())
	if err := x.signServer(signer); err != nil {
		return nil, err
	}
	reply := wire.NewEncoder(len(x.hostKey) + len(x.sig) + x.dh.group.Bits()/8 + 32).
		Byte(transport.MsgKexDHReply).
		String(x.hostKey).
		MPInt(x.f).
		String(x.sig).
		Bytes()
	return [][]byte{reply}, nil
}

func (x *fixedGroup) clientReply(payload []byte) error {
	d := wire.NewDecoder(payload[1:])
	hostKey := d.String()
	f := d.MPInt()
	sig := d.String()
	if err := d.Finish(); err != nil {
		return malformed("KEXDH_REPLY", err)
	}
	k, err := x.dh.shared(f)
	if err != nil {
		return err
	}
	x.hostKey, x.f, x.k, x.sig = bytes.Clone(hostKey), f, k, bytes.Clone(sig)
	x.digest(x.transcript().MPInt(x.e).MPInt(x.f).MPInt(x.k).Bytes())
	return x.verifyClient()
}

func (x *fixedGroup) Wipe() {
	x.dh.wipe()
	x.wipeShared()
}
