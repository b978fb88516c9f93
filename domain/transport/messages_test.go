package transport

import "testing"

func TestMessageRanges(t *testing.T) {
	cases := []struct {
		msg                          byte
		permitted, transport, method bool
	}{
		{MsgDisconnect, true, true, false},
		{MsgIgnore, true, true, false},
		{MsgDebug, true, true, false},
		{MsgUnimplemented, true, true, false},
		{MsgKexInit, false, true, false},
		{MsgKexDHGexInit, false, true, true},
		{49, false, true, true},
		{MsgUserAuthFirst, false, false, false},
		{0, false, false, false},
	}
	for _, c := range cases {
		if got := IsAlwaysPermitted(c.msg); got != c.permitted {
			t.Fatalf("IsAlwaysPermitted(%d): expected %v, got %v", c.msg, c.permitted, got)
		}
		if got := IsTransportMessage(c.msg); got != c.transport {
			t.Fatalf("IsTransportMessage(%d): expected %v, got %v", c.msg, c.transport, got)
		}
		if got := IsKexMessage(c.msg); got != c.method {
			t.Fatalf("IsKexMessage(%d): expected %v, got %v", c.msg, c.method, got)
		}
	}
}
