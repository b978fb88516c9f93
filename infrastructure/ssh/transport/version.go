package transport

import (
	"bytes"
	"fmt"
	"sshcore/domain/transport"
)

const (
	// maxVersionLine bounds an identification line, CR LF included (RFC 4253 §4.2).
	maxVersionLine = 255
	// maxPreambleLines bounds the banner lines a server may send first.
	maxPreambleLines = 1024
)

// IdentificationLine formats the line this side sends, without CR LF.
func IdentificationLine(softwareVersion string) []byte {
	return []byte("SSH-2.0-" + softwareVersion)
}

// versionReader collects the peer identification line from the raw stream.
type versionReader struct {
	isClient bool
	buf      []byte
	lines    int
}

// read consumes data until the identification line is complete. It returns
// the line without CR LF (nil while incomplete) and the bytes that follow it.
func (r *versionReader) read(data []byte) (line, rest []byte, err error) {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.buf = append(r.buf, data...)
			if len(r.buf) > maxVersionLine {
				return nil, nil, fmt.Errorf("%w: identification line too long", transport.ErrProtocolVersion)
			}
			return nil, nil, nil
		}
		l := append(r.buf, data[:i]...)
		data = data[i+1:]
		r.buf = nil
		if len(l)+1 > maxVersionLine {
			return nil, nil, fmt.Errorf("%w: identification line too long", transport.ErrProtocolVersion)
		}
		l = bytes.TrimSuffix(l, []byte{'\r'})
		if !bytes.HasPrefix(l, []byte("SSH-")) {
			// Servers may print banner lines first; clients may not.
			if !r.isClient {
				return nil, nil, fmt.Errorf("%w: expected identification line, got %q", transport.ErrProtocolVersion, l)
			}
			if r.lines++; r.lines > maxPreambleLines {
				return nil, nil, fmt.Errorf("%w: too many lines before identification", transport.ErrProtocolVersion)
			}
			continue
		}
		if err := checkVersion(l); err != nil {
			return nil, nil, err
		}
		return bytes.Clone(l), data, nil
	}
}

// checkVersion validates "SSH-protoversion-softwareversion [SP comments]".
// Only protocol 2.0 and the 1.99 compatibility marker are accepted.
func checkVersion(line []byte) error {
	for _, b := range line {
		if b < 0x20 || b > 0x7e {
			return fmt.Errorf("%w: non printable identification line", transport.ErrProtocolVersion)
		}
	}
	ident, _, _ := bytes.Cut(line, []byte{' '})
	parts := bytes.SplitN(ident, []byte{'-'}, 3)
	if len(parts) != 3 || len(parts[2]) == 0 {
		return fmt.Errorf("%w: malformed identification %q", transport.ErrProtocolVersion, line)
	}
	switch string(parts[1]) {
	case "2.0", "1.99":
		return nil
	default:
		return fmt.Errorf("%w: %q", transport.ErrProtocolVersion, parts[1])
	}
}
