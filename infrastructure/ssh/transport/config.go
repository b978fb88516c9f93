package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"net"
	"sshcore/application/logging"
	"sshcore/application/network/connection"
	"sshcore/infrastructure/settings"
	"sshcore/infrastructure/ssh/kex"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config is everything one Connection is created with.
type Config struct {
	IsClient bool
	Settings settings.TransportSettings

	// HostKeys sign the exchange hash on a server.
	HostKeys []ssh.Signer
	// HostKeyCallback verifies the server host key on a client.
	HostKeyCallback ssh.HostKeyCallback
	// HostName and RemoteAddr are handed to HostKeyCallback.
	HostName   string
	RemoteAddr net.Addr

	// Services are the services a server accepts SERVICE_REQUEST for.
	Services connection.Registry
	// Service is requested by a client after its first key exchange,
	// under Settings.Service. Nil leaves the client without a service.
	Service connection.Service

	// RSAKey is the transient key for RSA key transport.
	RSAKey *rsa.PrivateKey
	// Groups are the moduli offered for group exchange.
	Groups []*kex.Group

	Rand   io.Reader
	Clock  func() time.Time
	Logger logging.Logger
	// Wake is called from any goroutine when Flush has work to do.
	Wake func()
}

func (c Config) withDefaults() Config {
	c.Settings = c.Settings.WithDefaults()
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if len(c.Groups) == 0 {
		c.Groups = kex.DefaultGroups
	}
	return c
}

func (c Config) validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.IsClient {
		if c.HostKeyCallback == nil {
			return errors.New("transport: client requires a HostKeyCallback")
		}
		return nil
	}
	if len(c.HostKeys) == 0 {
		return errors.New("transport: server requires at least one host key")
	}
	if len(kex.HostKeyAlgorithms(c.Settings.Algorithms.HostKey, c.HostKeys)) == 0 {
		return errors.New("transport: no configured host key algorithm matches the host keys")
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
