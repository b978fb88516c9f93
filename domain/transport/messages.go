package transport

// SSH transport layer message numbers (RFC 4253, RFC 4419, RFC 4432, RFC 5656, RFC 8308).
const (
	MsgDisconnect     byte = 1
	MsgIgnore         byte = 2
	MsgUnimplemented  byte = 3
	MsgDebug          byte = 4
	MsgServiceRequest byte = 5
	MsgServiceAccept  byte = 6
	MsgExtInfo        byte = 7

	MsgKexInit byte = 20
	MsgNewKeys byte = 21

	// 30-49 are reused by every key exchange method.
	MsgKexDHInit  byte = 30
	MsgKexDHReply byte = 31

	MsgKexECDHInit  byte = 30
	MsgKexECDHReply byte = 31

	MsgKexDHGexRequestOld byte = 30
	MsgKexDHGexGroup      byte = 31
	MsgKexDHGexInit       byte = 32
	MsgKexDHGexReply      byte = 33
	MsgKexDHGexRequest    byte = 34

	MsgKexRSAPubKey byte = 30
	MsgKexRSASecret byte = 31
	MsgKexRSADone   byte = 32

	// First message number owned by the user authentication protocol.
	MsgUserAuthFirst byte = 50
)

// IsKexMessage reports whether msgType belongs to the key exchange method range.
func IsKexMessage(msgType byte) bool {
	return msgType >= 30 && msgType <= 49
}

// IsAlwaysPermitted reports whether msgType may be exchanged in any state,
// including while a key exchange is in flight.
func IsAlwaysPermitted(msgType byte) bool {
	switch msgType {
	case MsgDisconnect, MsgIgnore, MsgUnimplemented, MsgDebug:
		return true
	}
	return false
}

// IsTransportMessage reports whether msgType is handled by the transport itself.
func IsTransportMessage(msgType byte) bool {
	return msgType >= 1 && msgType < MsgUserAuthFirst
}
