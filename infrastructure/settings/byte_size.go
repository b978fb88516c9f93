package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count written the way OpenSSH writes RekeyLimit:
// a decimal number with an optional K, M or G suffix.
type ByteSize uint64

// ParseByteSize parses "512", "64K", "1M" or "1G".
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > ^uint64(0)/mult {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return ByteSize(n * mult), nil
}

func (b ByteSize) String() string {
	switch {
	case b == 0:
		return "0"
	case b%(1<<30) == 0:
		return strconv.FormatUint(uint64(b>>30), 10) + "G"
	case b%(1<<20) == 0:
		return strconv.FormatUint(uint64(b>>20), 10) + "M"
	case b%(1<<10) == 0:
		return strconv.FormatUint(uint64(b>>10), 10) + "K"
	}
	return strconv.FormatUint(uint64(b), 10)
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts a suffixed string or a plain number.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
