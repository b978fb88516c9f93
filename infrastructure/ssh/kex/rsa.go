package kex

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/wire"

	"golang.org/x/crypto/ssh"
)

// rsaKex is RSA key transport of RFC 4432: the server publishes a transient
// key, the client picks K and sends it encrypted with RSAES-OAEP.
type rsaKex struct {
	exchange
	bits      int
	transient *rsa.PrivateKey
	kt        []byte
	encrypted []byte
	signer    ssh.Signer
}

func newRSAKex(bits int, h crypto.Hash) *rsaKex {
	return &rsaKex{exchange: exchange{hash: h}, bits: bits}
}

func (x *rsaKex) Start(p *Params) ([][]byte, error) {
	x.params = p
	if p.IsClient {
		return nil, nil
	}
	signer, err := x.prepareServer()
	if err != nil {
		return nil, err
	}
	x.signer = signer
	key := p.RSAKey
	if key == nil {
		if key, err = rsa.GenerateKey(x.random(), x.bits); err != nil {
			return nil, fmt.Errorf("%w: generate transient key: %v", transport.ErrKeyExchange, err)
		}
	} else if key.N.BitLen() < x.bits {
		return nil, fmt.Errorf("%w: transient key has %d bits, need %d", transport.ErrKeyExchange, key.N.BitLen(), x.bits)
	}
	if err := ValidateCRT(key); err != nil {
		return nil, err
	}
	x.transient = key
	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrKeyExchange, err)
	}
	x.kt = pub.Marshal()
	msg := wire.NewEncoder(len(x.hostKey) + len(x.kt) + 16).
		Byte(transport.MsgKexRSAPubKey).
		String(x.hostKey).
		String(x.kt).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *rsaKex) ProcessMessage(payload []byte) ([][]byte, bool, error) {
	if x.done || len(payload) == 0 {
		return nil, false, nil
	}
	switch {
	case x.params.IsClient && payload[0] == transport.MsgKexRSAPubKey && x.kt == nil:
		out, err := x.clientPubKey(payload)
		return out, true, err
	case x.params.IsClient && payload[0] == transport.MsgKexRSADone && x.kt != nil:
		return nil, true, x.clientDone(payload)
	case !x.params.IsClient && payload[0] == transport.MsgKexRSASecret:
		out, err := x.serverSecret(payload)
		return out, true, err
	}
	return nil, false, nil
}

func (x *rsaKex) clientPubKey(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	hostKey := d.String()
	kt := d.String()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEXRSA_PUBKEY", err)
	}
	parsed, err := ssh.ParsePublicKey(kt)
	if err != nil {
		return nil, malformed("transient key", err)
	}
	ck, ok := parsed.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: transient key is not RSA", transport.ErrKeyExchange)
	}
	pub, ok := ck.CryptoPublicKey().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: transient key is not RSA", transport.ErrKeyExchange)
	}
	klen := pub.N.BitLen()
	if klen < x.bits {
		return nil, fmt.Errorf("%w: transient key has %d bits, need %d", transport.ErrKeyExchange, klen, x.bits)
	}
	x.hostKey, x.kt = bytes.Clone(hostKey), bytes.Clone(kt)

	// 0 <= K < 2^(KLEN - 2*HLEN - 49)
	limit := new(big.Int).Lsh(big.NewInt(1), uint(klen-2*x.hash.Size()*8-49))
	if x.k, err = rand.Int(x.random(), limit); err != nil {
		return nil, fmt.Errorf("%w: generate secret: %v", transport.ErrKeyExchange, err)
	}
	secret := wire.AppendMPInt(nil, x.k)
	defer mem.ZeroBytes(secret)
	if x.encrypted, err = rsa.EncryptOAEP(x.hash.New(), x.random(), pub, secret, nil); err != nil {
		return nil, fmt.Errorf("%w: encrypt secret: %v", transport.ErrKeyExchange, err)
	}
	x.digest(x.hashInput())
	msg := wire.NewEncoder(len(x.encrypted) + 8).
		Byte(transport.MsgKexRSASecret).
		String(x.encrypted).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *rsaKex) serverSecret(payload []byte) ([][]byte, error) {
	d := wire.NewDecoder(payload[1:])
	encrypted := d.String()
	if err := d.Finish(); err != nil {
		return nil, malformed("KEXRSA_SECRET", err)
	}
	secret, err := rsa.DecryptOAEP(x.hash.New(), nil, x.transient, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt secret: %v", transport.ErrKeyExchange, err)
	}
	defer mem.ZeroBytes(secret)
	sd := wire.NewDecoder(secret)
	k := sd.MPInt()
	if err := sd.Finish(); err != nil {
		return nil, malformed("secret", err)
	}
	x.k, x.encrypted = k, bytes.Clone(encrypted)
	x.digest(x.hashInput())
	if err := x.signServer(x.signer); err != nil {
		return nil, err
	}
	msg := wire.NewEncoder(len(x.sig) + 8).
		Byte(transport.MsgKexRSADone).
		String(x.sig).
		Bytes()
	return [][]byte{msg}, nil
}

func (x *rsaKex) clientDone(payload []byte) error {
	d := wire.NewDecoder(payload[1:])
	sig := d.String()
	if err := d.Finish(); err != nil {
		return malformed("KEXRSA_DONE", err)
	}
	x.sig = bytes.Clone(sig)
	return x.verifyClient()
}

func (x *rsaKex) hashInput() []byte {
	return x.transcript().String(x.kt).String(x.encrypted).MPInt(x.k).Bytes()
}

func (x *rsaKex) Wipe() {
	x.wipeShared()
	// A configured transient key outlives the exchange.
	if x.transient != nil && x.transient != x.params.RSAKey {
		mem.ZeroInt(x.transient.D)
	}
	x.transient = nil
}

// ErrCRTMismatch reports an RSA key whose CRT coefficient does not belong to
// its primes.
var ErrCRTMismatch = errors.New("rsa CRT coefficient does not match primes")

// ValidateCRT checks that the key has exactly two primes and that the
// precomputed qInv equals q^-1 mod p. Keys whose coefficient was stored
// against swapped primes are rejected.
func ValidateCRT(key *rsa.PrivateKey) error {
	if len(key.Primes) != 2 {
		return fmt.Errorf("%w: %w: want 2 primes, got %d", transport.ErrKeyExchange, ErrCRTMismatch, len(key.Primes))
	}
	p, q := key.Primes[0], key.Primes[1]
	want := new(big.Int).ModInverse(q, p)
	if want == nil {
		return fmt.Errorf("%w: %w", transport.ErrKeyExchange, ErrCRTMismatch)
	}
	if key.Precomputed.Qinv == nil {
		key.Precompute()
	}
	if key.Precomputed.Qinv == nil || key.Precomputed.Qinv.Cmp(want) != 0 {
		return fmt.Errorf("%w: %w", transport.ErrKeyExchange, ErrCRTMismatch)
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrKeyExchange, err)
	}
	return nil
}

// LoadTransientRSAKey parses a PEM encoded RSA key for RSA key transport.
func LoadTransientRSAKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	raw, err := ssh.ParseRawPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("transient key is %T, want RSA", raw)
	}
	if err := ValidateCRT(key); err != nil {
		return nil, err
	}
	return key, nil
}
