package codec

import (
	"encoding/binary"
	"fmt"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

// chachaPacketCipher implements chacha20-poly1305@openssh.com. The 64-byte
// key is split into a payload key (first half) and a length key (second half);
// the nonce is the packet sequence number.
type chachaPacketCipher struct {
	contentKey [32]byte
	lengthKey  [32]byte
}

func newChaChaPacketCipher(key, _ []byte, _ *macMode, _ []byte) (packetCipher, error) {
	c := &chachaPacketCipher{}
	copy(c.contentKey[:], key[:32])
	copy(c.lengthKey[:], key[32:64])
	return c, nil
}

func (c *chachaPacketCipher) blockSize() int     { return 8 }
func (c *chachaPacketCipher) alignsLength() bool { return false }
func (c *chachaPacketCipher) overhead() int      { return poly1305.TagSize }
func (c *chachaPacketCipher) prefixSize() int    { return 4 }

func chachaNonce(seq uint32) []byte {
	nonce := make([]byte, chacha20.NonceSize)
	binary.BigEndian.PutUint32(nonce[8:], seq)
	return nonce
}

func (c *chachaPacketCipher) decodeLength(seq uint32, prefix []byte) (uint32, error) {
	s, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], chachaNonce(seq))
	if err != nil {
		return 0, err
	}
	var length [4]byte
	s.XORKeyStream(length[:], prefix[:4])
	return binary.BigEndian.Uint32(length[:]), nil
}

// payloadStream returns the content keystream positioned at block 1 and the
// one-time Poly1305 key taken from block 0.
func (c *chachaPacketCipher) payloadStream(seq uint32) (*chacha20.Cipher, *[32]byte, error) {
	s, err := chacha20.NewUnauthenticatedCipher(c.contentKey[:], chachaNonce(seq))
	if err != nil {
		return nil, nil, err
	}
	var polyKey [32]byte
	s.XORKeyStream(polyKey[:], polyKey[:])
	s.SetCounter(1)
	return s, &polyKey, nil
}

func (c *chachaPacketCipher) open(seq uint32, wire []byte) ([]byte, error) {
	s, polyKey, err := c.payloadStream(seq)
	if err != nil {
		return nil, err
	}
	defer mem.ZeroBytes(polyKey[:])
	end := len(wire) - poly1305.TagSize
	var tag [poly1305.TagSize]byte
	copy(tag[:], wire[end:])
	if !poly1305.Verify(&tag, wire[:end], polyKey) {
		return nil, fmt.Errorf("%w: sequence %d", transport.ErrIntegrity, seq)
	}
	body := make([]byte, end-4)
	s.XORKeyStream(body, wire[4:end])
	return body, nil
}

func (c *chachaPacketCipher) seal(seq uint32, packet []byte) ([]byte, error) {
	ls, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], chachaNonce(seq))
	if err != nil {
		return nil, err
	}
	s, polyKey, err := c.payloadStream(seq)
	if err != nil {
		return nil, err
	}
	defer mem.ZeroBytes(polyKey[:])
	out := make([]byte, len(packet)+poly1305.TagSize)
	ls.XORKeyStream(out[:4], packet[:4])
	s.XORKeyStream(out[4:len(packet)], packet[4:])
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, out[:len(packet)], polyKey)
	copy(out[len(packet):], tag[:])
	return out, nil
}

func (c *chachaPacketCipher) wipe() {
	mem.ZeroBytes(c.contentKey[:])
	mem.ZeroBytes(c.lengthKey[:])
}
