package server

import (
	"errors"
	"fmt"
	"net"
	"sshcore/infrastructure/settings"
	"strings"
	"time"
)

const (
	DefaultTCPAddress         = ":2222"
	DefaultWSAddress          = ":8022"
	DefaultWSPath             = "/ssh"
	DefaultHostKeyFile        = "/etc/sshcore/ssh_host_ed25519_key"
	DefaultPolicyPollInterval = 30 * time.Second
	DefaultStatsInterval      = time.Minute
)

// ListenerSettings configures one listening socket.
type ListenerSettings struct {
	Enabled bool   `json:"Enabled"`
	Address string `json:"Address"`
	// Path is the HTTP path WebSocket upgrades are accepted on.
	Path string `json:"Path,omitempty"`
}

type Configuration struct {
	Transport settings.TransportSettings `json:"Transport"`
	TCP       ListenerSettings           `json:"TCP"`
	WS        ListenerSettings           `json:"WS"`

	// HostKeyFiles are PEM private keys in OpenSSH or PKCS#8 format.
	HostKeyFiles []string `json:"HostKeyFiles"`
	// RSAKeyFile is the transient key for the rsa*-sha* key exchanges.
	// One is generated when empty.
	RSAKeyFile string `json:"RSAKeyFile,omitempty"`
	// PolicyFile is an ssh_config document with per-host algorithm overrides.
	PolicyFile         string                         `json:"PolicyFile,omitempty"`
	PolicyPollInterval settings.HumanReadableDuration `json:"PolicyPollInterval,omitzero"`

	// Workers is the size of the reactor pool; 0 means GOMAXPROCS.
	Workers int `json:"Workers,omitzero"`
	// StatsInterval is how often traffic totals are logged.
	StatsInterval settings.HumanReadableDuration `json:"StatsInterval,omitzero"`
}

func NewDefaultConfiguration() *Configuration {
	configuration := &Configuration{
		TCP: ListenerSettings{Enabled: true, Address: DefaultTCPAddress},
		WS:  ListenerSettings{Enabled: false, Address: DefaultWSAddress, Path: DefaultWSPath},
	}
	return configuration.EnsureDefaults()
}

func (c *Configuration) EnsureDefaults() *Configuration {
	c.Transport = c.Transport.WithDefaults()
	if c.TCP.Address == "" {
		c.TCP.Address = DefaultTCPAddress
	}
	if c.WS.Address == "" {
		c.WS.Address = DefaultWSAddress
	}
	if c.WS.Path == "" {
		c.WS.Path = DefaultWSPath
	}
	if len(c.HostKeyFiles) == 0 {
		c.HostKeyFiles = []string{DefaultHostKeyFile}
	}
	if c.PolicyPollInterval == 0 {
		c.PolicyPollInterval = settings.HumanReadableDuration(DefaultPolicyPollInterval)
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = settings.HumanReadableDuration(DefaultStatsInterval)
	}
	return c
}

func (c *Configuration) Validate() error {
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("invalid 'Transport': %w", err)
	}
	if !c.TCP.Enabled && !c.WS.Enabled {
		return errors.New("no listener is enabled in server configuration")
	}
	for name, l := range map[string]ListenerSettings{"TCP": c.TCP, "WS": c.WS} {
		if !l.Enabled {
			continue
		}
		if _, _, err := net.SplitHostPort(l.Address); err != nil {
			return fmt.Errorf("invalid '%s.Address' %q: %w", name, l.Address, err)
		}
	}
	if c.WS.Enabled && !strings.HasPrefix(c.WS.Path, "/") {
		return fmt.Errorf("invalid 'WS.Path' %q: must start with '/'", c.WS.Path)
	}
	if c.TCP.Enabled && c.WS.Enabled && c.TCP.Address == c.WS.Address {
		return fmt.Errorf("'TCP.Address' and 'WS.Address' are both %s", c.TCP.Address)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid 'Workers': %d", c.Workers)
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid 'StatsInterval': %v", c.StatsInterval.Duration())
	}
	return nil
}
