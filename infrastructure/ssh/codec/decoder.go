package codec

import (
	"fmt"
	"sshcore/domain/transport"
)

// Decoder reassembles and opens packets of the incoming direction from an
// arbitrary stream of received bytes. It is not safe for concurrent use.
type Decoder struct {
	seq         uint32
	cipher      packetCipher
	compression compressionState
	inflater    *zlibInflater
	maxPacket   int

	buf    []byte
	length int
}

func NewDecoder(maxPacket int) *Decoder {
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacket
	}
	c, _ := newPacketCipher(algorithmsOrNone(transport.DirectionAlgorithms{}), DirectionKeys{})
	return &Decoder{cipher: c, maxPacket: maxPacket, length: -1, compression: compressionState{name: CompressionNone}}
}

// Install switches to new keys for every packet after the current one.
func (d *Decoder) Install(alg transport.DirectionAlgorithms, keys DirectionKeys) error {
	alg = algorithmsOrNone(alg)
	if !SupportedCompression(alg.Compression) {
		return fmt.Errorf("%w: unknown compression %q", transport.ErrNoCommonAlgorithm, alg.Compression)
	}
	c, err := newPacketCipher(alg, keys)
	if err != nil {
		return err
	}
	d.cipher.wipe()
	d.cipher = c
	d.compression.install(alg.Compression)
	return nil
}

func (d *Decoder) EnableDelayedCompression() {
	d.compression.enableDelayed()
}

// Seq returns the sequence number the next packet will be received under.
func (d *Decoder) Seq() uint32 { return d.seq }

// Feed appends received bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of received bytes not yet consumed.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next returns the next complete packet payload. ok is false when more bytes
// are needed. The payload never aliases fed buffers.
func (d *Decoder) Next() (payload []byte, seq uint32, ok bool, err error) {
	if d.length < 0 {
		prefix := d.cipher.prefixSize()
		if len(d.buf) < prefix {
			return nil, 0, false, nil
		}
		length, err := d.cipher.decodeLength(d.seq, d.buf[:prefix])
		if err != nil {
			return nil, 0, false, err
		}
		if err := d.checkLength(length); err != nil {
			return nil, 0, false, err
		}
		d.length = int(length)
	}
	total := 4 + d.length + d.cipher.overhead()
	if len(d.buf) < total {
		return nil, 0, false, nil
	}
	body, err := d.cipher.open(d.seq, d.buf[:total])
	d.consume(total)
	if err != nil {
		return nil, 0, false, err
	}
	padding := int(body[0])
	if padding < 4 || padding >= len(body)-1 {
		return nil, 0, false, fmt.Errorf("%w: invalid padding length %d", transport.ErrProtocol, padding)
	}
	payload = body[1 : len(body)-padding]
	if d.compression.active {
		if d.inflater == nil {
			d.inflater = newZlibInflater(d.maxPacket)
		}
		if payload, err = d.inflater.decompress(payload); err != nil {
			return nil, 0, false, err
		}
		if len(payload) == 0 {
			return nil, 0, false, fmt.Errorf("%w: empty inflated payload", transport.ErrCompression)
		}
	}
	seq = d.seq
	d.seq++
	return payload, seq, true, nil
}

// Decode opens exactly one complete wire packet.
func (d *Decoder) Decode(wire []byte) ([]byte, error) {
	d.Feed(wire)
	payload, _, ok, err := d.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: truncated packet", transport.ErrProtocol)
	}
	if d.Buffered() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", transport.ErrProtocol, d.Buffered())
	}
	return payload, nil
}

func (d *Decoder) checkLength(length uint32) error {
	if length < 5 || length > uint32(d.maxPacket) {
		return fmt.Errorf("%w: invalid packet length %d", transport.ErrProtocol, length)
	}
	aligned := length
	if d.cipher.alignsLength() {
		aligned += 4
	}
	if aligned%uint32(d.cipher.blockSize()) != 0 {
		return fmt.Errorf("%w: packet length %d not aligned to %d", transport.ErrProtocol, length, d.cipher.blockSize())
	}
	if 4+int(length) < d.cipher.prefixSize() {
		return fmt.Errorf("%w: packet length %d shorter than one block", transport.ErrProtocol, length)
	}
	return nil
}

func (d *Decoder) consume(n int) {
	d.length = -1
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

// Wipe destroys key material, buffered ciphertext and compression state.
func (d *Decoder) Wipe() {
	d.cipher.wipe()
	clear(d.buf)
	d.buf = nil
	if d.inflater != nil {
		d.inflater.close()
		d.inflater = nil
	}
}
