package ws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// withWSServer runs fn for every upgraded connection.
func withWSServer(t *testing.T, fn func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.Close(websocket.StatusNormalClosure, "") }()
		c.SetReadLimit(4 * MaxMessageSize)
		fn(r.Context(), c)
	}))
	t.Cleanup(s.Close)

	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dialClient(t *testing.T, url string) *Adapter {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	c.SetReadLimit(4 * MaxMessageSize)
	a := NewAdapter(context.Background(), c)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func echo(ctx context.Context, c *websocket.Conn) {
	for {
		mt, r, err := c.Reader(ctx)
		if err != nil {
			return
		}
		if mt != websocket.MessageBinary {
			_, _ = io.Copy(io.Discard, r)
			continue
		}
		b, _ := io.ReadAll(r)
		if err := c.Write(ctx, websocket.MessageBinary, b); err != nil {
			return
		}
	}
}

func TestAdapter_WriteReadBinary_Echo(t *testing.T) {
	const payload = "SSH-2.0-sshcore_1.0\r\n"
	a := dialClient(t, withWSServer(t, echo))

	if n, err := a.Write([]byte(payload)); err != nil || n != len(payload) {
		t.Fatalf("adapter.Write: n=%d err=%v", n, err)
	}
	buf := make([]byte, 64)
	n, err := a.Read(buf)
	if err != nil {
		t.Fatalf("adapter.Read: %v", err)
	}
	if got := string(buf[:n]); got != payload {
		t.Fatalf("echo mismatch: got %q want %q", got, payload)
	}
}

func TestAdapter_Write_SplitsLargeBuffers(t *testing.T) {
	sizes := make(chan int, 8)
	url := withWSServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			_, b, err := c.Read(ctx)
			if err != nil {
				return
			}
			sizes <- len(b)
		}
	})
	a := dialClient(t, url)

	data := bytes.Repeat([]byte{0x5a}, 2*MaxMessageSize+10)
	if n, err := a.Write(data); err != nil || n != len(data) {
		t.Fatalf("adapter.Write: n=%d err=%v", n, err)
	}
	want := []int{MaxMessageSize, MaxMessageSize, 10}
	for i, w := range want {
		select {
		case got := <-sizes:
			if got != w {
				t.Fatalf("message %d: expected %d bytes, got %d", i, w, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestAdapter_Read_StreamsAcrossMessages(t *testing.T) {
	url := withWSServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageBinary, []byte("SSH-2.0-"))
		_ = c.Write(ctx, websocket.MessageText, []byte("ignore me"))
		_ = c.Write(ctx, websocket.MessageBinary, []byte("peer\r\n"))
		<-ctx.Done()
	})
	a := dialClient(t, url)

	got := make([]byte, len("SSH-2.0-peer\r\n"))
	if _, err := io.ReadFull(a, got); err != nil {
		t.Fatalf("io.ReadFull: %v", err)
	}
	if string(got) != "SSH-2.0-peer\r\n" {
		t.Fatalf("expected the binary messages joined, got %q", got)
	}
}

func TestAdapter_ReadDeadline_Expired(t *testing.T) {
	url := withWSServer(t, func(ctx context.Context, c *websocket.Conn) {
		<-ctx.Done()
	})
	a := dialClient(t, url)
	_ = a.SetReadDeadline(time.Now().Add(-100 * time.Millisecond))

	_, err := a.Read(make([]byte, 1))
	if !errorsIsDeadline(err) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestAdapter_WriteDeadline_Expired(t *testing.T) {
	url := withWSServer(t, func(ctx context.Context, c *websocket.Conn) {
		<-ctx.Done()
	})
	a := dialClient(t, url)
	_ = a.SetWriteDeadline(time.Now().Add(-100 * time.Millisecond))

	if _, err := a.Write([]byte("payload")); !errorsIsDeadline(err) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestAdapter_Read_ReturnsEOF_OnNormalClose(t *testing.T) {
	url := withWSServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Close(websocket.StatusNormalClosure, "")
	})
	a := dialClient(t, url)

	if _, err := a.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func errorsIsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
