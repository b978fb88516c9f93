package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Addr is the remote end of a dialed WebSocket.
type Addr struct {
	URL string
}

func (a Addr) Network() string { return "websocket" }
func (a Addr) String() string  { return a.URL }

// Dialer opens SSH connections over WebSocket. It satisfies
// golang.org/x/net/proxy.ContextDialer; the network argument is ignored.
type Dialer struct {
	// Path is appended to bare host:port addresses. Full ws:// or wss://
	// URLs are used as given.
	Path       string
	Secure     bool
	HTTPClient *http.Client
	Header     http.Header
}

func (d *Dialer) DialContext(ctx context.Context, _ string, address string) (net.Conn, error) {
	url := d.url(address)
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:      d.HTTPClient,
		HTTPHeader:      d.Header,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	c.SetReadLimit(MaxMessageSize)
	return NewAdapter(context.Background(), c).WithAddrs(nil, Addr{URL: url}), nil
}

func (d *Dialer) url(address string) string {
	if strings.Contains(address, "://") {
		return address
	}
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	path := d.Path
	if path == "" {
		path = DefaultPath
	}
	return scheme + "://" + address + path
}
