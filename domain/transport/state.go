package transport

// State is the life-cycle phase of one transport connection.
type State int

const (
	StateVersionExchange State = iota
	StateAlgorithmNegotiation
	StateKeyExchange
	StateAwaitingNewKeys
	StateServiceActive
	StateRekeying
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateVersionExchange:
		return "VersionExchange"
	case StateAlgorithmNegotiation:
		return "AlgorithmNegotiation"
	case StateKeyExchange:
		return "KeyExchange"
	case StateAwaitingNewKeys:
		return "AwaitingNewKeys"
	case StateServiceActive:
		return "ServiceActive"
	case StateRekeying:
		return "Rekeying"
	case StateDisconnecting:
		return "Disconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further packets may be processed in s.
func (s State) Terminal() bool {
	return s == StateDisconnecting || s == StateClosed
}
