package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestReasonFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want DisconnectReason
	}{
		{"protocol", fmt.Errorf("bad padding: %w", ErrProtocol), ReasonProtocolError},
		{"version", fmt.Errorf("got SSH-1.5: %w", ErrProtocolVersion), ReasonProtocolVersionNotSupported},
		{"negotiation", fmt.Errorf("kex: %w", ErrNoCommonAlgorithm), ReasonKeyExchangeFailed},
		{"kex", ErrKeyExchange, ReasonKeyExchangeFailed},
		{"host key", ErrHostKeyRejected, ReasonHostKeyNotVerifiable},
		{"integrity", fmt.Errorf("seq 7: %w", ErrIntegrity), ReasonMACError},
		{"compression", ErrCompression, ReasonCompressionError},
		{"service", ErrServiceNotAvailable, ReasonServiceNotAvailable},
		{"explicit", &DisconnectError{Reason: ReasonTooManyConnections}, ReasonTooManyConnections},
		{"other", errors.New("boom"), ReasonByApplication},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReasonFor(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDisconnectError_UnwrapAndMessage(t *testing.T) {
	err := &DisconnectError{Reason: ReasonMACError, Message: "bad mac", Err: ErrIntegrity}
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected errors.Is to reach the wrapped sentinel")
	}
	if got := err.Error(); got != "local disconnect: MAC error: bad mac" {
		t.Fatalf("unexpected message %q", got)
	}
	remote := &DisconnectError{Reason: ReasonByApplication, Remote: true}
	if got := remote.Error(); got != "remote disconnect: by application" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestVersionErrorIsProtocolError(t *testing.T) {
	if !errors.Is(ErrProtocolVersion, ErrProtocol) {
		t.Fatal("expected version errors to be protocol errors")
	}
	if !errors.Is(ErrHostKeyRejected, ErrKeyExchange) {
		t.Fatal("expected host key rejection to be a key exchange failure")
	}
}
