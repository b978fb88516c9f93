package wire

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
)

var (
	ErrShortBuffer   = errors.New("wire: short buffer")
	ErrNegativeMPInt = errors.New("wire: negative mpint")
	ErrTrailingData  = errors.New("wire: trailing data")
	ErrMPIntPadding  = errors.New("wire: non-minimal mpint")
)

// Decoder reads SSH data types from a byte slice. The first failure is sticky:
// later reads return zero values and Err reports it.
type Decoder struct {
	buf []byte
	err error
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
	d.buf = nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf) < n {
		d.fail(ErrShortBuffer)
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *Decoder) Byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Bool() bool {
	switch d.Byte() {
	case 0:
		return false
	case 1:
		return true
	default:
		// RFC 4251 says any non-zero value is true.
		return d.err == nil
	}
}

func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// String returns the contents of an SSH string. The result aliases the input.
func (d *Decoder) String() []byte {
	n := d.Uint32()
	if d.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(d.buf)) {
		d.fail(ErrShortBuffer)
		return nil
	}
	return d.take(int(n))
}

func (d *Decoder) Text() string {
	return string(d.String())
}

func (d *Decoder) NameList() []string {
	s := d.Text()
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// MPInt reads a non-negative mpint.
func (d *Decoder) MPInt() *big.Int {
	b := d.String()
	if d.err != nil {
		return nil
	}
	if len(b) == 0 {
		return new(big.Int)
	}
	if b[0]&0x80 != 0 {
		d.fail(ErrNegativeMPInt)
		return nil
	}
	if len(b) > 1 && b[0] == 0 && b[1]&0x80 == 0 {
		d.fail(ErrMPIntPadding)
		return nil
	}
	return new(big.Int).SetBytes(b)
}

// Finish returns the sticky error, or ErrTrailingData if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return ErrTrailingData
	}
	return nil
}
