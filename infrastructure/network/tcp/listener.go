package tcp

import (
	"context"
	"net"
	"time"
)

// keepAlive is the TCP keep-alive period of accepted and dialed sockets.
const keepAlive = 30 * time.Second

// Listen opens a TCP listener with SO_REUSEADDR and TCP_NODELAY set on the
// listening socket where the platform supports it.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control:   control,
		KeepAlive: keepAlive,
	}
	return lc.Listen(ctx, "tcp", address)
}
