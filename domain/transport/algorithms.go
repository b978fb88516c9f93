package transport

import "fmt"

// DirectionAlgorithms holds the algorithms used for one direction of traffic.
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// NegotiatedAlgorithms is the outcome of one algorithm negotiation round.
// A new value is produced for every key exchange; values are never mutated.
type NegotiatedAlgorithms struct {
	Kex            string
	HostKey        string
	ClientToServer DirectionAlgorithms
	ServerToClient DirectionAlgorithms
}

func (a NegotiatedAlgorithms) String() string {
	return fmt.Sprintf("kex=%s hostkey=%s c2s=%s/%s/%s s2c=%s/%s/%s",
		a.Kex, a.HostKey,
		a.ClientToServer.Cipher, a.ClientToServer.MAC, a.ClientToServer.Compression,
		a.ServerToClient.Cipher, a.ServerToClient.MAC, a.ServerToClient.Compression,
	)
}

// Outgoing returns the algorithms this side uses to send.
func (a NegotiatedAlgorithms) Outgoing(isClient bool) DirectionAlgorithms {
	if isClient {
		return a.ClientToServer
	}
	return a.ServerToClient
}

// Incoming returns the algorithms this side uses to receive.
func (a NegotiatedAlgorithms) Incoming(isClient bool) DirectionAlgorithms {
	if isClient {
		return a.ServerToClient
	}
	return a.ClientToServer
}
