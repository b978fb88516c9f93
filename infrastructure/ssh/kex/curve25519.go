package kex

import (
	"crypto"
	"io"
	"sshcore/infrastructure/cryptography/mem"

	"golang.org/x/crypto/curve25519"
)

type x25519Agreement struct {
	priv [curve25519.ScalarSize]byte
}

func newCurve25519() *ecdhExchange {
	return &ecdhExchange{exchange: exchange{hash: crypto.SHA256}, curve: &x25519Agreement{}}
}

func (a *x25519Agreement) generate(random io.Reader) ([]byte, error) {
	if _, err := io.ReadFull(random, a.priv[:]); err != nil {
		return nil, err
	}
	return curve25519.X25519(a.priv[:], curve25519.Basepoint)
}

// agree fails on low order points, whose output is all zeroes.
func (a *x25519Agreement) agree(peer []byte) ([]byte, error) {
	return curve25519.X25519(a.priv[:], peer)
}

func (a *x25519Agreement) wipe() { mem.ZeroBytes(a.priv[:]) }
