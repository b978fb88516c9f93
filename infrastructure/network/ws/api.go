package ws

import (
	"context"
	"io"

	"github.com/coder/websocket"
)

// Conn abstracts github.com/coder/websocket.Conn used by Adapter.
type Conn interface {
	Reader(ctx context.Context) (websocket.MessageType, io.Reader, error)
	Writer(ctx context.Context, typ websocket.MessageType) (io.WriteCloser, error)
	Close(status websocket.StatusCode, reason string) error
}

// MaxMessageSize bounds one binary message in either direction. Writes
// larger than this are split, reads accept up to it.
const MaxMessageSize = 64 << 10

// DefaultPath is where the listener upgrades and the dialer connects.
const DefaultPath = "/ssh"
