//go:build !js

package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var _ net.Listener = (*Listener)(nil)

const (
	acceptQueueSize = 1024
	shutdownTimeout = 2 * time.Second
)

// Listener accepts SSH connections tunnelled over WebSocket upgrades on one
// HTTP path.
type Listener struct {
	ln     net.Listener
	srv    *http.Server
	queue  chan net.Conn
	once   sync.Once
	closed chan struct{}
}

// Listen wraps an existing TCP listener. Upgrades on path become
// connections returned by Accept.
func Listen(ctx context.Context, ln net.Listener, path string) *Listener {
	if path == "" {
		path = DefaultPath
	}
	l := &Listener{
		ln:     ln,
		queue:  make(chan net.Conn, acceptQueueSize),
		closed: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.upgrade)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		_ = l.srv.Serve(ln)
		close(l.closed)
	}()
	context.AfterFunc(ctx, func() { _ = l.Close() })
	return l
}

// NewListener listens on address.
func NewListener(ctx context.Context, address, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return Listen(ctx, ln, path), nil
}

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return
	}
	c.SetReadLimit(MaxMessageSize)
	conn := NewAdapter(context.Background(), c).WithAddrs(l.ln.Addr(), parseTCPAddr(r.RemoteAddr))

	select {
	case l.queue <- conn:
	case <-l.closed:
		_ = c.Close(websocket.StatusGoingAway, "shutting down")
	default:
		_ = c.Close(websocket.StatusTryAgainLater, "queue full")
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.queue:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = l.srv.Shutdown(shCtx)
		if errors.Is(err, context.DeadlineExceeded) {
			err = l.srv.Close()
		}
	})
	return err
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func parseTCPAddr(s string) net.Addr {
	host, port, _ := net.SplitHostPort(s)
	p, _ := strconv.Atoi(port)
	return &net.TCPAddr{IP: net.ParseIP(host), Port: p}
}
