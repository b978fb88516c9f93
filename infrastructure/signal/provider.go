package signal

import "os"

// Provider abstracts platform-specific signals
type Provider interface {
	ShutdownSignals() []os.Signal
	// ReloadSignals ask a running server to re-read its negotiation policy.
	// Platforms without such a signal return nil.
	ReloadSignals() []os.Signal
}
