package server

import (
	"context"
	"fmt"
	"net"
	serverConfiguration "sshcore/infrastructure/configuration/server"
	"sshcore/infrastructure/network/tcp"
	"sshcore/infrastructure/network/ws"
	"sshcore/infrastructure/settings"
)

// ListenerFactory opens the socket for one enabled listener.
type ListenerFactory interface {
	Listen(ctx context.Context, protocol settings.Protocol, ls serverConfiguration.ListenerSettings) (net.Listener, error)
}

type defaultListenerFactory struct{}

func NewListenerFactory() ListenerFactory {
	return defaultListenerFactory{}
}

func (defaultListenerFactory) Listen(
	ctx context.Context,
	protocol settings.Protocol,
	ls serverConfiguration.ListenerSettings,
) (net.Listener, error) {
	switch protocol {
	case settings.TCP:
		return tcp.Listen(ctx, ls.Address)
	case settings.WS:
		ln, err := tcp.Listen(ctx, ls.Address)
		if err != nil {
			return nil, err
		}
		return ws.Listen(ctx, ln, ls.Path), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %v", protocol)
	}
}
