package kex

import (
	"crypto"
	"math/big"
	"sshcore/infrastructure/cryptography/mem"
	"sshcore/infrastructure/ssh/wire"
)

// Key derivation letters of RFC 4253 section 7.2.
const (
	LetterIVClientToServer  byte = 'A'
	LetterIVServerToClient  byte = 'B'
	LetterKeyClientToServer byte = 'C'
	LetterKeyServerToClient byte = 'D'
	LetterMACClientToServer byte = 'E'
	LetterMACServerToClient byte = 'F'
)

// DeriveKey produces size bytes of key material:
// HASH(K || H || letter || session_id), extended by HASH(K || H || K1 || ... )
// until long enough.
func DeriveKey(hash crypto.Hash, k *big.Int, h []byte, letter byte, sessionID []byte, size int) []byte {
	if size == 0 {
		return nil
	}
	kEnc := wire.AppendMPInt(nil, k)
	defer mem.ZeroBytes(kEnc)
	out := make([]byte, 0, size+hash.Size())

	d := hash.New()
	d.Write(kEnc)
	d.Write(h)
	d.Write([]byte{letter})
	d.Write(sessionID)
	out = d.Sum(out)

	for len(out) < size {
		d.Reset()
		d.Write(kEnc)
		d.Write(h)
		d.Write(out)
		out = d.Sum(out)
	}
	return out[:size]
}
