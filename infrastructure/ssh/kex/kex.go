// Package kex implements the SSH key exchange methods and key derivation.
//
// Every method is a Strategy driven one message at a time by the transport:
// Start returns the messages this side opens with, ProcessMessage consumes one
// method-specific message and returns the replies. No Strategy performs I/O.
package kex

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/wire"

	"golang.org/x/crypto/ssh"
)

const (
	Curve25519SHA256       = "curve25519-sha256"
	Curve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	ECDHSHA2NISTP256       = "ecdh-sha2-nistp256"
	ECDHSHA2NISTP384       = "ecdh-sha2-nistp384"
	ECDHSHA2NISTP521       = "ecdh-sha2-nistp521"
	DHGroupExchangeSHA256  = "diffie-hellman-group-exchange-sha256"
	DHGroupExchangeSHA1    = "diffie-hellman-group-exchange-sha1"
	DHGroup16SHA512        = "diffie-hellman-group16-sha512"
	DHGroup14SHA256        = "diffie-hellman-group14-sha256"
	DHGroup14SHA1          = "diffie-hellman-group14-sha1"
	DHGroup1SHA1           = "diffie-hellman-group1-sha1"
	RSA2048SHA256          = "rsa2048-sha256"
	RSA1024SHA1            = "rsa1024-sha1"

	// ExtInfoClient is the RFC 8308 marker a client appends to its kex list.
	ExtInfoClient = "ext-info-c"
)

// DefaultAlgorithms is the kex preference order used when nothing is configured.
var DefaultAlgorithms = []string{
	Curve25519SHA256,
	Curve25519SHA256LibSSH,
	ECDHSHA2NISTP256,
	ECDHSHA2NISTP384,
	ECDHSHA2NISTP521,
	DHGroupExchangeSHA256,
	DHGroup16SHA512,
	DHGroup14SHA256,
}

// Strategy is one key exchange method for one exchange round.
type Strategy interface {
	// Start returns the messages this side sends first; often none.
	Start(p *Params) ([][]byte, error)
	// ProcessMessage consumes one method message. handled is false when the
	// message number does not belong to this method's current step.
	ProcessMessage(payload []byte) (out [][]byte, handled bool, err error)
	Done() bool
	ExchangeHash() []byte
	// Secret is the shared secret K.
	Secret() *big.Int
	// HostKey is the server host key blob K_S.
	HostKey() []byte
	// Signature is the server's signature blob over the exchange hash.
	Signature() []byte
	Hash() crypto.Hash
	// Wipe destroys ephemeral and shared secrets.
	Wipe()
}

// Factory creates a fresh Strategy.
type Factory func() Strategy

var registry = map[string]Factory{
	Curve25519SHA256:       func() Strategy { return newCurve25519() },
	Curve25519SHA256LibSSH: func() Strategy { return newCurve25519() },
	ECDHSHA2NISTP256:       func() Strategy { return newNISTECDH(ecdh.P256(), crypto.SHA256) },
	ECDHSHA2NISTP384:       func() Strategy { return newNISTECDH(ecdh.P384(), crypto.SHA384) },
	ECDHSHA2NISTP521:       func() Strategy { return newNISTECDH(ecdh.P521(), crypto.SHA512) },
	DHGroupExchangeSHA256:  func() Strategy { return newGroupExchange(crypto.SHA256) },
	DHGroupExchangeSHA1:    func() Strategy { return newGroupExchange(crypto.SHA1) },
	DHGroup16SHA512:        func() Strategy { return newFixedGroup(Group16, crypto.SHA512) },
	DHGroup14SHA256:        func() Strategy { return newFixedGroup(Group14, crypto.SHA256) },
	DHGroup14SHA1:          func() Strategy { return newFixedGroup(Group14, crypto.SHA1) },
	DHGroup1SHA1:           func() Strategy { return newFixedGroup(Group1, crypto.SHA1) },
	RSA2048SHA256:          func() Strategy { return newRSAKex(2048, crypto.SHA256) },
	RSA1024SHA1:            func() Strategy { return newRSAKex(1024, crypto.SHA1) },
}

// New returns the Strategy registered under name.
func New(name string) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key exchange %q", transport.ErrNoCommonAlgorithm, name)
	}
	return f(), nil
}

func Supported(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists every registered method, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Params is the per-exchange input shared by all strategies.
type Params struct {
	IsClient bool
	// Identification strings without CR LF.
	ClientVersion []byte
	ServerVersion []byte
	// Raw KEXINIT payloads, message number included.
	ClientKexInit []byte
	ServerKexInit []byte
	// HostKeyAlgorithm is the negotiated host key signature algorithm.
	HostKeyAlgorithm string
	// HostKeys are the server's signers; unused on the client.
	HostKeys []ssh.Signer
	Rand     io.Reader
	// GroupExchange bounds the client's group-exchange request.
	GroupExchange GroupBounds
	// Groups are the moduli a server offers for group exchange.
	Groups []*Group
	// RSAKey is the server's transient key for RSA key transport; one is
	// generated when nil.
	RSAKey *rsa.PrivateKey
}

// GroupBounds is the (min, preferred, max) modulus size request of RFC 4419.
type GroupBounds struct {
	Min       uint32
	Preferred uint32
	Max       uint32
}

// DefaultGroupBounds keeps modular exponentiation on reactor goroutines bounded.
var DefaultGroupBounds = GroupBounds{Min: 2048, Preferred: 3072, Max: 8192}

// exchange carries the state and results common to every method.
type exchange struct {
	params  *Params
	hash    crypto.Hash
	h       []byte
	k       *big.Int
	hostKey []byte
	sig     []byte
	done    bool
}

func (x *exchange) Done() bool           { return x.done }
func (x *exchange) ExchangeHash() []byte { return x.h }
func (x *exchange) Secret() *big.Int     { return x.k }
func (x *exchange) HostKey() []byte      { return x.hostKey }
func (x *exchange) Signature() []byte    { return x.sig }
func (x *exchange) Hash() crypto.Hash    { return x.hash }

func (x *exchange) random() io.Reader {
	if x.params.Rand != nil {
		return x.params.Rand
	}
	return rand.Reader
}

func (x *exchange) wipeShared() {
	mem.ZeroInt(x.k)
}

// transcript starts the exchange hash input common to all methods:
// V_C, V_S, I_C, I_S, K_S.
func (x *exchange) transcript() *wire.Encoder {
	p := x.params
	return wire.NewEncoder(2048).
		String(p.ClientVersion).
		String(p.ServerVersion).
		String(p.ClientKexInit).
		String(p.ServerKexInit).
		String(x.hostKey)
}

func (x *exchange) digest(data []byte) {
	h := x.hash.New()
	h.Write(data)
	x.h = h.Sum(nil)
}

// prepareServer selects the host key that signs this exchange.
func (x *exchange) prepareServer() (ssh.Signer, error) {
	signer, err := signerFor(x.params.HostKeyAlgorithm, x.params.HostKeys)
	if err != nil {
		return nil, err
	}
	x.hostKey = signer.PublicKey().Marshal()
	return signer, nil
}

// signServer signs the exchange hash; call after digest.
func (x *exchange) signServer(signer ssh.Signer) error {
	sig, err := signHash(x.random(), signer, x.params.HostKeyAlgorithm, x.h)
	if err != nil {
		return err
	}
	x.sig = sig
	x.done = true
	return nil
}

// verifyClient checks the server signature; call after digest.
func (x *exchange) verifyClient() error {
	if err := VerifySignature(x.params.HostKeyAlgorithm, x.hostKey, x.h, x.sig); err != nil {
		return err
	}
	x.done = true
	return nil
}

// expect reports whether payload is the message this step waits for.
func expect(payload []byte, msg byte) bool {
	return len(payload) > 0 && payload[0] == msg
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: malformed %s: %v", transport.ErrKeyExchange, what, err)
}
