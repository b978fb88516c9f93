package connection

import "sshcore/domain/transport"

// Service is an upper-layer protocol (user authentication, connection
// multiplexing) attached to an established transport.
//
// The transport calls ProcessMessage only while the connection is
// ServiceActive, in arrival order, after decryption and MAC verification.
// All Service callbacks except Stop run on the goroutine that owns the
// connection; Stop may be invoked from the closing goroutine.
type Service interface {
	// Init binds the service to its transport before Start.
	Init(t Transport)
	// ProcessMessage handles one decrypted payload (payload[0] is the message number).
	// handled=false makes the transport answer with SSH_MSG_UNIMPLEMENTED.
	// Errors wrapping transport.ErrService are reported and the connection stays up;
	// any other error is fatal.
	ProcessMessage(payload []byte) (handled bool, err error)
	Start()
	// Stop is called once when the connection closes; err is the terminal error.
	Stop(err error)
	// IdleTimeoutSeconds returns the inactivity after which Idle is called, 0 to use the sweep threshold.
	IdleTimeoutSeconds() int
	Idle()
}

// Transport is the surface a Service sees.
type Transport interface {
	// Enqueue appends msg to the connection's FIFO outbound queue. Safe for concurrent use.
	Enqueue(msg OutboundMessage) error
	// Disconnect sends SSH_MSG_DISCONNECT and closes the connection. Safe for concurrent use.
	Disconnect(reason transport.DisconnectReason, message string)
	// SessionID returns the exchange hash of the first key exchange.
	SessionID() []byte
	IsClient() bool
	// SwitchService replaces the attached service, e.g. once authentication succeeds.
	SwitchService(next Service)
	// EnableDelayedCompression activates zlib@openssh.com once authentication succeeded.
	EnableDelayedCompression()
	// Extensions returns the RFC 8308 extensions received from the peer.
	Extensions() map[string]string
}

// Factory creates a fresh Service for one connection.
type Factory func() Service

// Registry maps SSH service names (e.g. "ssh-userauth") to factories.
type Registry map[string]Factory
