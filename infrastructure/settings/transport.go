package settings

import (
	"fmt"
	"sshcore/infrastructure/ssh/codec"
)

const (
	DefaultSoftwareVersion = "sshcore_1.0"
	DefaultService         = "ssh-userauth"
	DefaultDialTimeoutMs   = DialTimeoutMs(5000)
)

// TransportSettings is everything a single SSH connection is configured with.
type TransportSettings struct {
	Algorithms      Algorithms `json:"Algorithms"`
	Rekey           Rekey      `json:"Rekey"`
	Idle            Idle       `json:"Idle"`
	MaxPacketSize   int        `json:"MaxPacketSize,omitzero"`
	SoftwareVersion string     `json:"SoftwareVersion,omitempty"`
	// Service is what a client requests after its first key exchange.
	Service       string        `json:"Service,omitempty"`
	DialTimeoutMs DialTimeoutMs `json:"DialTimeoutMs,omitzero"`
}

func DefaultTransportSettings() TransportSettings {
	return TransportSettings{}.WithDefaults()
}

// WithDefaults fills every zero field.
func (s TransportSettings) WithDefaults() TransportSettings {
	s.Algorithms = s.Algorithms.withDefaults()
	s.Rekey = s.Rekey.withDefaults()
	s.Idle = s.Idle.withDefaults()
	if s.MaxPacketSize == 0 {
		s.MaxPacketSize = codec.DefaultMaxPacket
	}
	if s.SoftwareVersion == "" {
		s.SoftwareVersion = DefaultSoftwareVersion
	}
	if s.Service == "" {
		s.Service = DefaultService
	}
	if s.DialTimeoutMs == 0 {
		s.DialTimeoutMs = DefaultDialTimeoutMs
	}
	return s
}

func (s TransportSettings) Validate() error {
	if err := s.Algorithms.Validate(); err != nil {
		return err
	}
	// RFC 4253 requires 35000 byte packets to be accepted.
	if s.MaxPacketSize != 0 && s.MaxPacketSize < 35000 {
		return fmt.Errorf("invalid 'MaxPacketSize': %d is below 35000", s.MaxPacketSize)
	}
	for _, r := range s.SoftwareVersion {
		if r == ' ' || r == '-' || r < 0x21 || r > 0x7e {
			return fmt.Errorf("invalid 'SoftwareVersion' %q: printable ASCII without spaces or minus signs", s.SoftwareVersion)
		}
	}
	if s.Idle.PeriodsPerIdle < 0 {
		return fmt.Errorf("invalid 'PeriodsPerIdle': %d", s.Idle.PeriodsPerIdle)
	}
	return nil
}
