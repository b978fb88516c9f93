// Package codec encodes and decodes SSH binary packets (RFC 4253 §6) for one
// direction of a connection: framing, padding, sequence numbers, MAC, cipher
// and compression.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"slices"
	"sshcore/domain/transport"
)

const (
	CipherChaCha20Poly1305 = "chacha20-poly1305@openssh.com"
	CipherAES128GCM        = "aes128-gcm@openssh.com"
	CipherAES256GCM        = "aes256-gcm@openssh.com"
	CipherAES128CTR        = "aes128-ctr"
	CipherAES192CTR        = "aes192-ctr"
	CipherAES256CTR        = "aes256-ctr"
	CipherNone             = "none"

	MACHMACSHA256ETM = "hmac-sha2-256-etm@openssh.com"
	MACHMACSHA512ETM = "hmac-sha2-512-etm@openssh.com"
	MACHMACSHA1ETM   = "hmac-sha1-etm@openssh.com"
	MACHMACSHA256    = "hmac-sha2-256"
	MACHMACSHA512    = "hmac-sha2-512"
	MACHMACSHA1      = "hmac-sha1"
	MACNone          = "none"

	CompressionNone    = "none"
	CompressionZlib    = "zlib"
	CompressionDelayed = "zlib@openssh.com"
)

// DefaultMaxPacket caps packet_length, matching OpenSSH.
const DefaultMaxPacket = 256 * 1024

// DefaultCiphers is the preference order offered when nothing is configured.
// "none" is supported but never offered by default.
var DefaultCiphers = []string{
	CipherChaCha20Poly1305,
	CipherAES128GCM,
	CipherAES256GCM,
	CipherAES128CTR,
	CipherAES192CTR,
	CipherAES256CTR,
}

var DefaultMACs = []string{
	MACHMACSHA256ETM,
	MACHMACSHA512ETM,
	MACHMACSHA256,
	MACHMACSHA512,
	MACHMACSHA1ETM,
	MACHMACSHA1,
}

var DefaultCompressions = []string{
	CompressionNone,
	CompressionDelayed,
	CompressionZlib,
}

type cipherMode struct {
	keySize   int
	ivSize    int
	aead      bool
	construct func(key, iv []byte, mac *macMode, macKey []byte) (packetCipher, error)
}

type macMode struct {
	keySize int
	etm     bool
	newHash func() hash.Hash
}

var cipherModes = map[string]*cipherMode{
	CipherChaCha20Poly1305: {keySize: 64, ivSize: 0, aead: true, construct: newChaChaPacketCipher},
	CipherAES128GCM:        {keySize: 16, ivSize: 12, aead: true, construct: newGCMPacketCipher},
	CipherAES256GCM:        {keySize: 32, ivSize: 12, aead: true, construct: newGCMPacketCipher},
	CipherAES128CTR:        {keySize: 16, ivSize: aes.BlockSize, construct: newAESCTRPacketCipher},
	CipherAES192CTR:        {keySize: 24, ivSize: aes.BlockSize, construct: newAESCTRPacketCipher},
	CipherAES256CTR:        {keySize: 32, ivSize: aes.BlockSize, construct: newAESCTRPacketCipher},
	CipherNone:             {construct: newNonePacketCipher},
}

var macModes = map[string]*macMode{
	MACHMACSHA256ETM: {keySize: 32, etm: true, newHash: sha256.New},
	MACHMACSHA512ETM: {keySize: 64, etm: true, newHash: sha512.New},
	MACHMACSHA1ETM:   {keySize: 20, etm: true, newHash: sha1.New},
	MACHMACSHA256:    {keySize: 32, newHash: sha256.New},
	MACHMACSHA512:    {keySize: 64, newHash: sha512.New},
	MACHMACSHA1:      {keySize: 20, newHash: sha1.New},
	MACNone:          {},
}

var compressions = []string{CompressionNone, CompressionZlib, CompressionDelayed}

func SupportedCipher(name string) bool {
	_, ok := cipherModes[name]
	return ok
}

func SupportedMAC(name string) bool {
	_, ok := macModes[name]
	return ok
}

func SupportedCompression(name string) bool {
	return slices.Contains(compressions, name)
}

// IsAEAD reports whether the cipher authenticates packets itself, in which
// case no MAC algorithm is negotiated for that direction.
func IsAEAD(cipherName string) bool {
	m, ok := cipherModes[cipherName]
	return ok && m.aead
}

// KeySizes are the derived key lengths one direction needs.
type KeySizes struct {
	IV  int
	Key int
	MAC int
}

func SizesFor(alg transport.DirectionAlgorithms) (KeySizes, error) {
	cm, ok := cipherModes[alg.Cipher]
	if !ok {
		return KeySizes{}, fmt.Errorf("%w: unknown cipher %q", transport.ErrNoCommonAlgorithm, alg.Cipher)
	}
	sizes := KeySizes{IV: cm.ivSize, Key: cm.keySize}
	if cm.aead {
		return sizes, nil
	}
	mm, ok := macModes[alg.MAC]
	if !ok {
		return KeySizes{}, fmt.Errorf("%w: unknown MAC %q", transport.ErrNoCommonAlgorithm, alg.MAC)
	}
	sizes.MAC = mm.keySize
	return sizes, nil
}

// DirectionKeys is the key material installed for one direction.
type DirectionKeys struct {
	IV     []byte
	Key    []byte
	MACKey []byte
}

func newPacketCipher(alg transport.DirectionAlgorithms, keys DirectionKeys) (packetCipher, error) {
	cm, ok := cipherModes[alg.Cipher]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cipher %q", transport.ErrNoCommonAlgorithm, alg.Cipher)
	}
	if len(keys.Key) < cm.keySize || len(keys.IV) < cm.ivSize {
		return nil, fmt.Errorf("codec: short key material for %s", alg.Cipher)
	}
	var mm *macMode
	if !cm.aead {
		if mm, ok = macModes[alg.MAC]; !ok {
			return nil, fmt.Errorf("%w: unknown MAC %q", transport.ErrNoCommonAlgorithm, alg.MAC)
		}
		if len(keys.MACKey) < mm.keySize {
			return nil, fmt.Errorf("codec: short MAC key for %s", alg.MAC)
		}
	}
	var macKey []byte
	if mm != nil {
		macKey = keys.MACKey[:mm.keySize]
	}
	return cm.construct(keys.Key[:cm.keySize], keys.IV[:cm.ivSize], mm, macKey)
}

func newAESCTRPacketCipher(key, iv []byte, mac *macMode, macKey []byte) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return newStreamPacketCipher(cipher.NewCTR(block, iv), aes.BlockSize, mac, macKey), nil
}

func newNonePacketCipher(_, _ []byte, mac *macMode, macKey []byte) (packetCipher, error) {
	return newStreamPacketCipher(nil, 8, mac, macKey), nil
}

func newMAC(mac *macMode, key []byte) hash.Hash {
	if mac == nil || mac.newHash == nil {
		return nil
	}
	return hmac.New(mac.newHash, key)
}
