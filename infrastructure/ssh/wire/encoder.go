// Package wire implements the SSH data type representations of RFC 4251 §5.
package wire

import (
	"encoding/binary"
	"math/big"
	"strings"
)

// Encoder appends SSH data types to a byte slice. Methods chain.
type Encoder struct {
	buf []byte
}

func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// NewEncoderWith appends to dst.
func NewEncoderWith(dst []byte) *Encoder {
	return &Encoder{buf: dst}
}

func (e *Encoder) Byte(v byte) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.Byte(1)
	}
	return e.Byte(0)
}

func (e *Encoder) Uint32(v uint32) *Encoder {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
	return e
}

// Raw appends b without a length prefix.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// String appends b as an SSH string (uint32 length + bytes).
func (e *Encoder) String(b []byte) *Encoder {
	return e.Uint32(uint32(len(b))).Raw(b)
}

func (e *Encoder) Text(s string) *Encoder {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *Encoder) NameList(names []string) *Encoder {
	return e.Text(strings.Join(names, ","))
}

// MPInt appends a non-negative multiple precision integer.
func (e *Encoder) MPInt(v *big.Int) *Encoder {
	e.buf = AppendMPInt(e.buf, v)
	return e
}

// MPIntBytes appends an unsigned big-endian magnitude as an mpint.
func (e *Encoder) MPIntBytes(magnitude []byte) *Encoder {
	e.buf = appendMPIntMagnitude(e.buf, magnitude)
	return e
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Len() int { return len(e.buf) }

// AppendMPInt encodes v (which must be >= 0) in two's complement mpint form.
func AppendMPInt(dst []byte, v *big.Int) []byte {
	if v.Sign() == 0 {
		return binary.BigEndian.AppendUint32(dst, 0)
	}
	return appendMPIntMagnitude(dst, v.Bytes())
}

func appendMPIntMagnitude(dst, mag []byte) []byte {
	for len(mag) > 0 && mag[0] == 0 {
		mag = mag[1:]
	}
	if len(mag) == 0 {
		return binary.BigEndian.AppendUint32(dst, 0)
	}
	if mag[0]&0x80 != 0 {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(mag)+1))
		dst = append(dst, 0)
	} else {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(mag)))
	}
	return append(dst, mag...)
}
