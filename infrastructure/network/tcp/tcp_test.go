package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestListenAndDial(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = c.Write([]byte("SSH-2.0-test\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := NewDialer(time.Second).DialContext(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	got := make([]byte, len("SSH-2.0-test\r\n"))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "SSH-2.0-test\r\n" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestListenTwiceOnSameAddressFails(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if second, err := Listen(context.Background(), ln.Addr().String()); err == nil {
		second.Close()
		t.Fatal("expected a second active listener on the same address to fail")
	}
}

type blockingDialer struct {
	release chan struct{}
	closed  chan struct{}
}

func (d *blockingDialer) Dial(string, string) (net.Conn, error) {
	<-d.release
	a, b := net.Pipe()
	_ = b.Close()
	return &closeNotifier{Conn: a, closed: d.closed}, nil
}

type closeNotifier struct {
	net.Conn
	closed chan struct{}
}

func (c *closeNotifier) Close() error {
	close(c.closed)
	return c.Conn.Close()
}

func TestContextDialerCancel(t *testing.T) {
	d := &blockingDialer{release: make(chan struct{}), closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (contextDialer{d}).DialContext(ctx, "tcp", "example.com:22"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(d.release)
	select {
	case <-d.closed:
	case <-time.After(time.Second):
		t.Fatal("expected the abandoned connection to be closed")
	}
}
