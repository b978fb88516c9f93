package kex

import (
	"bytes"
	"crypto"
	"fmt"
	"math/big"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/wire"
)

// groupExchange is diffie-hellman-group-exchange-* of RFC 4419.
type groupExchange struct {
	exchange
	dh     modp
	bounds GroupBounds
	// old marks a server answering SSH_MSG_KEX_DH_GEX_REQUEST_OLD, which
	// hashes only the preferred size.
	old  bool
	e, f *big.Int
}

func newGroupExchange(h crypto.Hash) *groupExchange {
	return &groupExchange{exchange: exchange{hash: h}}
}

func (x *groupExchange) Start(p *Params) ([][]byte, error) {
	x.params = p
	if !p.IsClient {
		return nil, nil
	}
	x.bounds = p.GroupExchange
	if x.bounds == (GroupBounds{}) {
		x.bounds = DefaultGroupBounds
	}
	if x.bounds.Min > x.bounds.Preferred || x.bounds.Preferred > x.bounds.Max {
		return nil, fmt.Errorf("%w: invalid group bounds %d/%d/%d", transport.ErrKeyExchange,
			x.bounds.Min, x.bounds.Preferred, x.bounds.Max)
	}
	msg := wire.NewEncoder(13).
		Byte(transport.MsgKexDHGexRequest).
		Uint32(x.bounds.Min).
		Uint32(x.bounds.Preferred).
		Uint32(x.bounds.Max).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *groupExchange) ProcessMessage(payload []byte) ([][]byte, bool, error) {
	if x.done || len(payload) == 0 {
		return nil, false, nil
	}
	var (
		out [][]byte
		err error
	)
	switch {
	case x.params.IsClient && payload[0] == transport.MsgKexDHGexGroup && x.dh.group == nil:
		out, err = x.clientGroup(payload)
	case x.params.IsClient && payload[0] == transport.MsgKexDHGexReply && x.dh.group != nil:
		err = x.clientReply(payload)
	case !x.params.IsClient && payload[0] == transport.MsgKexDHGexRequest && x.dh.group == nil:
		out, err = x.serverRequest(payload, false)
	case !x.params.IsClient && payload[0] == transport.MsgKexDHGexRequestOld && x.dh.group == nil:
		out, err = x.serverRequest(payload, true)
	case !x.params.IsClient && payload[0] == transport.MsgKexDHGexInit && x.dh.group != nil:
		out, err = x.serverInit(payload)
	default:
		return nil, false, nil
	}
	return out, true, err
}

func (x *groupExchange) serverRequest(payload []byte, old bool) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	if old {
		// Old clients take whatever size is closest to n.
		x.bounds = GroupBounds{Min: 1024, Preferred: d.Uint32(), Max: DefaultGroupBounds.Max}
	} else {
		x.bounds = GroupBounds{Min: d.Uint32(), Preferred: d.Uint32(), Max: d.Uint32()}
	}
	if err := d.Finish(); err != nil {
		return nil, malformed("KEX_DH_GEX_REQUEST", err)
	}
	x.old = old
	if !old && (x.bounds.Min > x.bounds.Preferred || x.bounds.Preferred > x.bounds.Max) {
		return nil, fmt.Errorf("%w: invalid group bounds %d/%d/%d", transport.ErrKeyExchange,
			x.bounds.Min, x.bounds.Preferred, x.bounds.Max)
	}
	groups := x.params.Groups
	if len(groups) == 0 {
		groups = DefaultGroups
	}
	g, err := SelectGroup(groups, x.bounds)
	if err != nil {
		return nil, err
	}
	x.dh.group = g
	msg := wire.NewEncoder(g.Bits()/8 + 16).
		Byte(transport.MsgKexDHGexGroup).
		MPInt(g.P).
		MPInt(g.G).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *groupExchange) clientGroup(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	p := d.MPInt()
	g := d.MPInt()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEX_DH_GEX_GROUP", err)
	}
	bits := uint32(p.BitLen())
	if bits < x.bounds.Min || bits > x.bounds.Max {
		return nil, fmt.Errorf("%w: server group has %d bits, want %d..%d", transport.ErrKeyExchange,
			bits, x.bounds.Min, x.bounds.Max)
	}
	if err := checkPublic(g, p); err != nil {
		return nil, fmt.Errorf("%w: bad generator", transport.ErrKeyExchange)
	}
	x.dh.group = &Group{P: p, G: g}
	if err := x.dh.generate(x.random()); err != nil {
		return nil, err
	}
	x.e = x.dh.pub
	msg := wire.NewEncoder(p.BitLen()/8 + 16).
		Byte(transport.MsgKexDHGexInit).
		MPInt(x.e).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *groupExchange) serverInit(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	e := d.MPInt()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEX_DH_GEX_INIT", err)
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
	x.digest(x.hashInput())
	if err := x.signServer(signer); err != nil {
		return nil, err
	}
	reply := wire.NewEncoder(len(x.hostKey) + len(x.sig) + x.dh.group.Bits()/8 + 32).
		Byte(transport.MsgKexDHGexReply).
		String(x.hostKey).
		MPInt(x.f).
		String(x.sig).
		Bytes()
	return [][]byte{reply}, nil
}

func (x *groupExchange) clientReply(payload []byte) error {
	d := wire.NewDecoder(payload[1:])
	hostKey := d.String()
	f := d.MPInt()
	sig := d.String()
	if err := d.Finish(); err != nil {
		return malformed("KEX_DH_GEX_REPLY", err)
	}
	k, err := x.dh.shared(f)
	if err != nil {
		return err
	}
	x.hostKey, x.f, x.k, x.sig = bytes.Clone(hostKey), f, k, bytes.Clone(sig)
	x.digest(x.hashInput())
	return x.verifyClient()
}

func (x *groupExchange) hashInput() []byte {
	enc := x.transcript()
	if x.old {
		enc.Uint32(x.bounds.Preferred)
	} else {
		enc.Uint32(x.bounds.Min).Uint32(x.bounds.Preferred).Uint32(x.bounds.Max)
	}
	return enc.MPInt(x.dh.group.P).
		MPInt(x.dh.group.G).
		MPInt(x.e).
		MPInt(x.f).
		MPInt(x.k).
		Bytes()
}

func (x *groupExchange) Wipe() {
	x.dh.wipe()
	x.wipeShared()
}
