package client

import (
	"errors"
	"net"
	"net/url"
	"sshcore/infrastructure/settings"
	"strings"
	"time"
)

// Options describe one probe of a remote SSH server.
type Options struct {
	// Address is host:port, or a full ws:// / wss:// URL for WS.
	Address  string
	Protocol settings.Protocol
	// WSPath and Secure build the URL when Address is a bare host:port.
	WSPath string
	Secure bool

	// KnownHosts are OpenSSH known_hosts files the server key must appear in.
	KnownHosts []string
	// Insecure accepts any host key. Either KnownHosts or Insecure is required.
	Insecure bool

	// Transport is the base settings; PolicyFile may narrow them per host.
	Transport  settings.TransportSettings
	PolicyFile string

	// Timeout bounds dialing plus the first key exchange; 0 means DefaultTimeout.
	Timeout time.Duration
}

func (o Options) Validate() error {
	if o.Address == "" {
		return errors.New("address is required")
	}
	if o.Protocol != settings.TCP && o.Protocol != settings.WS {
		return settings.ErrInvalidProtocol
	}
	if len(o.KnownHosts) == 0 && !o.Insecure {
		return errors.New("a known_hosts file is required unless host key checking is disabled")
	}
	return o.Transport.WithDefaults().Validate()
}

// hostPort is what host keys are checked against.
func (o Options) hostPort() string {
	if !strings.Contains(o.Address, "://") {
		return o.Address
	}
	u, err := url.Parse(o.Address)
	if err != nil {
		return o.Address
	}
	return u.Host
}

// policyHost is the name Host blocks of the policy file are matched against.
func (o Options) policyHost() string {
	host, _, err := net.SplitHostPort(o.hostPort())
	if err != nil {
		return o.hostPort()
	}
	return host
}
