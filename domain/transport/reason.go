package transport

import "fmt"

// DisconnectReason is an SSH_MSG_DISCONNECT reason code.
type DisconnectReason uint32

const (
	ReasonHostNotAllowedToConnect     DisconnectReason = 1
	ReasonProtocolError               DisconnectReason = 2
	ReasonKeyExchangeFailed           DisconnectReason = 3
	ReasonReserved                    DisconnectReason = 4
	ReasonMACError                    DisconnectReason = 5
	ReasonCompressionError            DisconnectReason = 6
	ReasonServiceNotAvailable         DisconnectReason = 7
	ReasonProtocolVersionNotSupported DisconnectReason = 8
	ReasonHostKeyNotVerifiable        DisconnectReason = 9
	ReasonConnectionLost              DisconnectReason = 10
	ReasonByApplication               DisconnectReason = 11
	ReasonTooManyConnections          DisconnectReason = 12
	ReasonAuthCancelledByUser         DisconnectReason = 13
	ReasonNoMoreAuthMethodsAvailable  DisconnectReason = 14
	ReasonIllegalUserName             DisconnectReason = 15
)

var reasonNames = map[DisconnectReason]string{
	ReasonHostNotAllowedToConnect:     "host not allowed to connect",
	ReasonProtocolError:               "protocol error",
	ReasonKeyExchangeFailed:           "key exchange failed",
	ReasonReserved:                    "reserved",
	ReasonMACError:                    "MAC error",
	ReasonCompressionError:            "compression error",
	ReasonServiceNotAvailable:         "service not available",
	ReasonProtocolVersionNotSupported: "protocol version not supported",
	ReasonHostKeyNotVerifiable:        "host key not verifiable",
	ReasonConnectionLost:              "connection lost",
	ReasonByApplication:               "by application",
	ReasonTooManyConnections:          "too many connections",
	ReasonAuthCancelledByUser:         "auth cancelled by user",
	ReasonNoMoreAuthMethodsAvailable:  "no more auth methods available",
	ReasonIllegalUserName:             "illegal user name",
}

func (r DisconnectReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason %d", uint32(r))
}
