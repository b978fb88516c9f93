package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestListenerAndDialer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, err := NewListener(ctx, "127.0.0.1:0", "")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	d := &Dialer{}
	client, err := d.DialContext(ctx, "tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if got := client.RemoteAddr().String(); got != "ws://"+l.Addr().String()+DefaultPath {
		t.Fatalf("unexpected remote address %q", got)
	}

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}
	defer server.Close()

	if _, err := client.Write([]byte("SSH-2.0-client\r\n")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len("SSH-2.0-client\r\n"))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(got) != "SSH-2.0-client\r\n" {
		t.Fatalf("unexpected bytes %q", got)
	}
	if server.LocalAddr().String() != l.Addr().String() {
		t.Fatalf("expected the listener address as local address, got %v", server.LocalAddr())
	}
}

func TestListenerWrongPathIsNotUpgraded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, err := NewListener(ctx, "127.0.0.1:0", "/ssh")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	d := &Dialer{Path: "/other"}
	if _, err := d.DialContext(ctx, "tcp", l.Addr().String()); err == nil {
		t.Fatal("expected the upgrade to fail on an unknown path")
	}
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := NewListener(ctx, "127.0.0.1:0", "")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("expected net.ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected Accept to return after cancel")
	}
}

func TestDialerURL(t *testing.T) {
	cases := []struct {
		d    Dialer
		addr string
		want string
	}{
		{Dialer{}, "example.com:80", "ws://example.com:80/ssh"},
		{Dialer{Secure: true, Path: "/tunnel"}, "example.com:443", "wss://example.com:443/tunnel"},
		{Dialer{Path: "/ignored"}, "wss://example.com/custom", "wss://example.com/custom"},
	}
	for _, tc := range cases {
		if got := tc.d.url(tc.addr); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.addr, tc.want, got)
		}
	}
}
