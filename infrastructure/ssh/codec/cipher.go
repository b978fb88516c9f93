package codec

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"hash"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
)

// packetCipher protects packets of one direction. packet is always the
// plaintext uint32 length || padding length || payload || padding.
type packetCipher interface {
	// blockSize is the alignment unit for padding.
	blockSize() int
	// alignsLength reports whether the length field counts towards alignment.
	alignsLength() bool
	// overhead is the number of trailing MAC/tag bytes.
	overhead() int
	// prefixSize is how many leading wire bytes are needed to learn the length.
	prefixSize() int
	decodeLength(seq uint32, prefix []byte) (uint32, error)
	// open verifies and decrypts a full wire packet and returns a fresh
	// padding length || payload || padding slice.
	open(seq uint32, wire []byte) ([]byte, error)
	seal(seq uint32, packet []byte) ([]byte, error)
	wipe()
}

// streamPacketCipher covers stream ciphers (AES-CTR, none) with an optional
// HMAC in either MAC-then-encrypt or encrypt-then-MAC order.
type streamPacketCipher struct {
	stream cipher.Stream
	mac    hash.Hash
	etm    bool
	block  int

	head   []byte
	seqBuf [4]byte
	sum    []byte
}

func newStreamPacketCipher(stream cipher.Stream, block int, mode *macMode, macKey []byte) *streamPacketCipher {
	c := &streamPacketCipher{stream: stream, block: block, mac: newMAC(mode, macKey)}
	if mode != nil {
		c.etm = mode.etm
	}
	return c
}

func (c *streamPacketCipher) blockSize() int     { return c.block }
func (c *streamPacketCipher) alignsLength() bool { return !c.etm }

func (c *streamPacketCipher) overhead() int {
	if c.mac == nil {
		return 0
	}
	return c.mac.Size()
}

func (c *streamPacketCipher) prefixSize() int {
	if c.etm {
		return 4
	}
	return c.block
}

func (c *streamPacketCipher) xor(dst, src []byte) {
	if c.stream == nil {
		copy(dst, src)
		return
	}
	c.stream.XORKeyStream(dst, src)
}

func (c *streamPacketCipher) authenticate(seq uint32, data []byte) []byte {
	c.mac.Reset()
	binary.BigEndian.PutUint32(c.seqBuf[:], seq)
	c.mac.Write(c.seqBuf[:])
	c.mac.Write(data)
	c.sum = c.mac.Sum(c.sum[:0])
	return c.sum
}

func (c *streamPacketCipher) decodeLength(_ uint32, prefix []byte) (uint32, error) {
	if c.etm {
		return binary.BigEndian.Uint32(prefix), nil
	}
	c.head = append(c.head[:0], prefix...)
	c.xor(c.head, c.head)
	return binary.BigEndian.Uint32(c.head), nil
}

func (c *streamPacketCipher) open(seq uint32, wire []byte) ([]byte, error) {
	end := len(wire) - c.overhead()
	if c.etm {
		if c.mac != nil && !hmac.Equal(c.authenticate(seq, wire[:end]), wire[end:]) {
			return nil, fmt.Errorf("%w: sequence %d", transport.ErrIntegrity, seq)
		}
		body := make([]byte, end-4)
		c.xor(body, wire[4:end])
		return body, nil
	}
	plain := make([]byte, end)
	copy(plain, c.head)
	c.xor(plain[len(c.head):], wire[len(c.head):end])
	mem.ZeroBytes(c.head)
	if c.mac != nil && !hmac.Equal(c.authenticate(seq, plain), wire[end:]) {
		mem.ZeroBytes(plain)
		return nil, fmt.Errorf("%w: sequence %d", transport.ErrIntegrity, seq)
	}
	return plain[4:], nil
}

func (c *streamPacketCipher) seal(seq uint32, packet []byte) ([]byte, error) {
	out := make([]byte, len(packet), len(packet)+c.overhead())
	if c.etm {
		copy(out, packet[:4])
		c.xor(out[4:], packet[4:])
		if c.mac != nil {
			out = append(out, c.authenticate(seq, out)...)
		}
		return out, nil
	}
	var tag []byte
	if c.mac != nil {
		tag = c.authenticate(seq, packet)
	}
	c.xor(out, packet)
	return append(out, tag...), nil
}

func (c *streamPacketCipher) wipe() {
	mem.ZeroAll(c.head, c.sum)
	c.stream = nil
	c.mac = nil
}
