package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol covers malformed framing, oversized packets, bad version strings
	// and messages that are not allowed in the current state.
	ErrProtocol = errors.New("protocol error")
	// ErrProtocolVersion is returned for unsupported or malformed identification strings.
	ErrProtocolVersion = fmt.Errorf("%w: protocol version not supported", ErrProtocol)
	// ErrNoCommonAlgorithm is returned when the two preference lists share no entry.
	ErrNoCommonAlgorithm = errors.New("no common algorithm")
	// ErrKeyExchange covers bad signatures, malformed exchange messages and group validation failures.
	ErrKeyExchange = errors.New("key exchange failed")
	// ErrHostKeyRejected is returned when the host key callback refuses the server key.
	ErrHostKeyRejected = fmt.Errorf("%w: host key rejected", ErrKeyExchange)
	// ErrIntegrity is returned on MAC or AEAD tag mismatch.
	ErrIntegrity = errors.New("message authentication failed")
	// ErrCompression is returned when a compressed payload cannot be inflated.
	ErrCompression = errors.New("compression error")
	// ErrServiceNotAvailable is returned when the peer requests an unknown service.
	ErrServiceNotAvailable = errors.New("service not available")
	// ErrService marks recoverable errors reported by an attached service.
	ErrService = errors.New("service error")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// DisconnectError is the terminal error of a connection. Remote is true when the
// peer sent the DISCONNECT message.
type DisconnectError struct {
	Reason  DisconnectReason
	Message string
	Remote  bool
	Err     error
}

func (e *DisconnectError) Error() string {
	side := "local"
	if e.Remote {
		side = "remote"
	}
	if e.Message == "" {
		return fmt.Sprintf("%s disconnect: %s", side, e.Reason)
	}
	return fmt.Sprintf("%s disconnect: %s: %s", side, e.Reason, e.Message)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// ReasonFor maps an error to the disconnect reason sent to the peer.
func ReasonFor(err error) DisconnectReason {
	var de *DisconnectError
	switch {
	case errors.As(err, &de):
		return de.Reason
	case errors.Is(err, ErrProtocolVersion):
		return ReasonProtocolVersionNotSupported
	case errors.Is(err, ErrHostKeyRejected):
		return ReasonHostKeyNotVerifiable
	case errors.Is(err, ErrIntegrity):
		return ReasonMACError
	case errors.Is(err, ErrCompression):
		return ReasonCompressionError
	case errors.Is(err, ErrServiceNotAvailable):
		return ReasonServiceNotAvailable
	case errors.Is(err, ErrNoCommonAlgorithm), errors.Is(err, ErrKeyExchange):
		return ReasonKeyExchangeFailed
	case errors.Is(err, ErrProtocol):
		return ReasonProtocolError
	default:
		return ReasonByApplication
	}
}
