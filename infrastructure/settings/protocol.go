package settings

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidProtocol = errors.New("invalid protocol")
)

// Protocol is the socket carrying an SSH byte stream.
type Protocol int

const (
	UNKNOWN Protocol = iota
	TCP
	// WS carries the byte stream in binary WebSocket messages.
	WS
)

func (p Protocol) MarshalJSON() ([]byte, error) {
	switch p {
	case UNKNOWN, TCP, WS:
		return json.Marshal(p.String())
	}
	return nil, ErrInvalidProtocol
}

func (p *Protocol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.EqualFold(s, "UNKNOWN") {
		*p = UNKNOWN
		return nil
	}
	parsed, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProtocol reads a case-insensitive protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TCP":
		return TCP, nil
	case "WS", "WEBSOCKET":
		return WS, nil
	default:
		return UNKNOWN, ErrInvalidProtocol
	}
}

func (p Protocol) String() string {
	switch p {
	case UNKNOWN:
		return "UNKNOWN"
	case TCP:
		return "TCP"
	case WS:
		return "WS"
	default:
		return ErrInvalidProtocol.Error()
	}
}
