package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
)

// gcmPacketCipher implements aes*-gcm@openssh.com (RFC 5647): the length is
// sent in clear as additional data and the IV carries a 64-bit invocation counter.
type gcmPacketCipher struct {
	aead cipher.AEAD
	iv   []byte
}

func newGCMPacketCipher(key, iv []byte, _ *macMode, _ []byte) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmPacketCipher{aead: aead, iv: append([]byte(nil), iv...)}, nil
}

func (c *gcmPacketCipher) blockSize() int     { return aes.BlockSize }
func (c *gcmPacketCipher) alignsLength() bool { return false }
func (c *gcmPacketCipher) overhead() int      { return c.aead.Overhead() }
func (c *gcmPacketCipher) prefixSize() int    { return 4 }

func (c *gcmPacketCipher) decodeLength(_ uint32, prefix []byte) (uint32, error) {
	return binary.BigEndian.Uint32(prefix), nil
}

func (c *gcmPacketCipher) open(seq uint32, wire []byte) ([]byte, error) {
	body, err := c.aead.Open(nil, c.iv, wire[4:], wire[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: sequence %d", transport.ErrIntegrity, seq)
	}
	c.increment()
	return body, nil
}

func (c *gcmPacketCipher) seal(_ uint32, packet []byte) ([]byte, error) {
	out := make([]byte, 4, len(packet)+c.aead.Overhead())
	copy(out, packet[:4])
	out = c.aead.Seal(out, c.iv, packet[4:], packet[:4])
	c.increment()
	return out, nil
}

func (c *gcmPacketCipher) increment() {
	for i := len(c.iv) - 1; i >= 4; i-- {
		c.iv[i]++
		if c.iv[i] != 0 {
			break
		}
	}
}

func (c *gcmPacketCipher) wipe() {
	mem.ZeroBytes(c.iv)
	c.aead = nil
}
