package tcp

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// NewDialer returns a dialer honoring ALL_PROXY and NO_PROXY. Direct
// connections get the same socket options as the listener.
func NewDialer(timeout time.Duration) proxy.ContextDialer {
	direct := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: keepAlive,
		Control:   control,
	}
	d := proxy.FromEnvironmentUsing(direct)
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd
	}
	return contextDialer{d}
}

// contextDialer adapts a proxy.Dialer without context support. A cancelled
// dial is abandoned and its connection closed once it completes.
type contextDialer struct {
	d proxy.Dialer
}

func (c contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := c.d.Dial(network, address)
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
