package transport

// Action tells the I/O driver what to do after a connection processed input.
type Action int

const (
	// Continue keeps the connection open; any pending output should be written.
	Continue Action = iota
	// FlushAndClose writes pending output (typically a DISCONNECT) and then closes the socket.
	FlushAndClose
	// Close drops the socket immediately.
	Close
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "Continue"
	case FlushAndClose:
		return "FlushAndClose"
	case Close:
		return "Close"
	default:
		return "Unknown"
	}
}
