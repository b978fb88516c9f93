package kex

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"fmt"
	"io"
	"math/big"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/wire"
)

// agreement is an elliptic curve Diffie-Hellman primitive.
type agreement interface {
	generate(random io.Reader) (public []byte, err error)
	agree(peer []byte) (secret []byte, err error)
	wipe()
}

type nistAgreement struct {
	curve ecdh.Curve
	priv  *ecdh.PrivateKey
}

func (a *nistAgreement) generate(random io.Reader) ([]byte, error) {
	priv, err := a.curve.GenerateKey(random)
	if err != nil {
		return nil, err
	}
	a.priv = priv
	return priv.PublicKey().Bytes(), nil
}

func (a *nistAgreement) agree(peer []byte) ([]byte, error) {
	pub, err := a.curve.NewPublicKey(peer)
	if err != nil {
		return nil, err
	}
	return a.priv.ECDH(pub)
}

func (a *nistAgreement) wipe() { a.priv = nil }

// ecdhExchange is RFC 5656 ECDH and RFC 8731 curve25519: both exchange
// opaque public values and hash them as strings.
type ecdhExchange struct {
	exchange
	curve  agreement
	qc, qs []byte
}

func newNISTECDH(curve ecdh.Curve, h crypto.Hash) *ecdhExchange {
	return &ecdhExchange{exchange: exchange{hash: h}, curve: &nistAgreement{curve: curve}}
}

func (x *ecdhExchange) Start(p *Params) ([][]byte, error) {
	x.params = p
	if !p.IsClient {
		return nil, nil
	}
	pub, err := x.curve.generate(x.random())
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", transport.ErrKeyExchange, err)
	}
	x.qc = pub
	msg := wire.NewEncoder(len(pub) + 8).
		Byte(transport.MsgKexECDHInit).
		String(pub).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *ecdhExchange) ProcessMessage(payload []byte) ([][]byte, bool, error) {
	if x.done {
		return nil, false, nil
	}
	if x.params.IsClient {
		if !expect(payload, transport.MsgKexECDHReply) {
			return nil, false, nil
		}
		return nil, true, x.clientReply(payload)
	}
	if !expect(payload, transport.MsgKexECDHInit) {
		return nil, false, nil
	}
	out, err := x.serverInit(payload)
	return out, true, err
}

func (x *ecdhExchange) serverInit(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	qc := d.String()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEX_ECDH_INIT", err)
	}
	signer, err := x.prepareServer()
	if err != nil {
		return nil, err
	}
	qs, err := x.curve.generate(x.random())
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", transport.ErrKeyExchange, err)
	}
	x.qc, x.qs = bytes.Clone(qc), qs
	if err := x.computeSecret(x.qc); err != nil {
		return nil, err
	}
	x.digest(x.hashInput())
	if err := x.signServer(signer); err != nil {
		return nil, err
	}
	reply := wire.NewEncoder(len(x.hostKey) + len(x.qs) + len(x.sig) + 16).
		Byte(transport.MsgKexECDHReply).
		String(x.hostKey).
		String(x.qs).
		String(x.sig).
		Bytes()
	return [][]byte{reply}, nil
}

func (x *ecdhExchange) clientReply(payload []byte) error {
	d := wire.NewDecoder(payload[1:])
	hostKey := d.String()
	qs := d.String()
	sig := d.String()
	if err := d.Finish(); err != nil {
		return malformed("KEX_ECDH_REPLY", err)
	}
	x.hostKey, x.qs, x.sig = bytes.Clone(hostKey), bytes.Clone(qs), bytes.Clone(sig)
	if err := x.computeSecret(x.qs); err != nil {
		return err
	}
	x.digest(x.hashInput())
	return x.verifyClient()
}

func (x *ecdhExchange) computeSecret(peer []byte) error {
	secret, err := x.curve.agree(peer)
	if err != nil {
		return fmt.Errorf("%w: invalid peer public key: %v", transport.ErrKeyExchange, err)
	}
	x.k = new(big.Int).SetBytes(secret)
	mem.ZeroBytes(secret)
	return nil
}

func (x *ecdhExchange) hashInput() []byte {
	return x.transcript().String(x.qc).String(x.qs).MPInt(x.k).Bytes()
}

func (x *ecdhExchange) Wipe() {
	x.curve.wipe()
	x.wipeShared()
}
