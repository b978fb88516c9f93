package codec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sshcore/domain/transport"
	"sshcore/infrastructure/cryptography/mem"
)

// Encoder turns payloads into wire packets for the outgoing direction.
// It is not safe for concurrent use.
type Encoder struct {
	seq         uint32
	cipher      packetCipher
	compression compressionState
	deflater    *zlibDeflater
	rand        io.Reader
	maxPacket   int
}

// NewEncoder returns an encoder in the initial unencrypted state.
// random supplies padding bytes; nil means crypto/rand.
func NewEncoder(random io.Reader, maxPacket int) *Encoder {
	if random == nil {
		random = rand.Reader
	}
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacket
	}
	c, _ := newPacketCipher(algorithmsOrNone(transport.DirectionAlgorithms{}), DirectionKeys{})
	return &Encoder{cipher: c, rand: random, maxPacket: maxPacket, compression: compressionState{name: CompressionNone}}
}

// Install switches to new keys. The sequence number is left untouched.
func (e *Encoder) Install(alg transport.DirectionAlgorithms, keys DirectionKeys) error {
	alg = algorithmsOrNone(alg)
	if !SupportedCompression(alg.Compression) {
		return fmt.Errorf("%w: unknown compression %q", transport.ErrNoCommonAlgorithm, alg.Compression)
	}
	c, err := newPacketCipher(alg, keys)
	if err != nil {
		return err
	}
	e.cipher.wipe()
	e.cipher = c
	e.compression.install(alg.Compression)
	return nil
}

// EnableDelayedCompression starts zlib@openssh.com after user authentication.
func (e *Encoder) EnableDelayedCompression() {
	e.compression.enableDelayed()
}

// Seq returns the sequence number of the next packet.
func (e *Encoder) Seq() uint32 { return e.seq }

// MaxPayload is the largest payload Encode accepts, leaving room for the
// padding length byte and the largest padding any cipher needs.
func (e *Encoder) MaxPayload() int { return e.maxPacket - 1 - 2*maxBlockSize }

const maxBlockSize = 16

// Encode frames payload into one wire packet and returns it with the
// sequence number it was sent under.
func (e *Encoder) Encode(payload []byte) ([]byte, uint32, error) {
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("%w: empty payload", transport.ErrProtocol)
	}
	if len(payload) > e.MaxPayload() {
		return nil, 0, fmt.Errorf("%w: payload of %d bytes exceeds %d", transport.ErrProtocol, len(payload), e.MaxPayload())
	}
	data := payload
	if e.compression.active {
		if e.deflater == nil {
			e.deflater = newZlibDeflater()
		}
		compressed, err := e.deflater.compress(payload)
		if err != nil {
			return nil, 0, err
		}
		data = compressed
	}

	padding := e.paddingFor(len(data))
	length := 1 + len(data) + padding
	if length > e.maxPacket {
		return nil, 0, fmt.Errorf("%w: packet of %d bytes exceeds %d", transport.ErrProtocol, length, e.maxPacket)
	}
	packet := make([]byte, 4+length)
	binary.BigEndian.PutUint32(packet, uint32(length))
	packet[4] = byte(padding)
	copy(packet[5:], data)
	if _, err := io.ReadFull(e.rand, packet[5+len(data):]); err != nil {
		return nil, 0, fmt.Errorf("padding: %w", err)
	}

	out, err := e.cipher.seal(e.seq, packet)
	mem.ZeroBytes(packet)
	if err != nil {
		return nil, 0, err
	}
	seq := e.seq
	e.seq++
	return out, seq, nil
}

func (e *Encoder) paddingFor(dataLen int) int {
	block := e.cipher.blockSize()
	aligned := 1 + dataLen
	if e.cipher.alignsLength() {
		aligned += 4
	}
	padding := block - aligned%block
	if padding < 4 {
		padding += block
	}
	for 4+1+dataLen+padding < 16 {
		padding += block
	}
	return padding
}

// Wipe destroys key material and compression state.
func (e *Encoder) Wipe() {
	e.cipher.wipe()
	if e.deflater != nil {
		e.deflater.close()
		e.deflater = nil
	}
}
