package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
)

// NegotiationPolicy narrows the base TransportSettings per remote host using
// an ssh_config document. For each key the first matching Host block wins,
// as in OpenSSH.
//
// A policy is safe for concurrent use; Replace swaps the document under
// readers without blocking them for longer than a pointer copy.
type NegotiationPolicy struct {
	base TransportSettings

	mu  sync.RWMutex
	cfg *ssh_config.Config
}

// NewNegotiationPolicy builds a policy with no per-host overrides.
func NewNegotiationPolicy(base TransportSettings) *NegotiationPolicy {
	return &NegotiationPolicy{base: base.WithDefaults()}
}

// ParseNegotiationPolicy reads an ssh_config document.
func ParseNegotiationPolicy(base TransportSettings, r io.Reader) (*NegotiationPolicy, error) {
	p := NewNegotiationPolicy(base)
	if err := p.Replace(r); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadNegotiationPolicy reads an ssh_config file. A missing file yields a
// policy with no overrides.
func LoadNegotiationPolicy(base TransportSettings, path string) (*NegotiationPolicy, error) {
	p := NewNegotiationPolicy(base)
	if path == "" {
		return p, nil
	}
	if err := p.Reload(path); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the policy file; a missing file clears all overrides.
func (p *NegotiationPolicy) Reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.mu.Lock()
			p.cfg = nil
			p.mu.Unlock()
			return nil
		}
		return fmt.Errorf("policy file (%s) is unreadable: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := p.Replace(f); err != nil {
		return fmt.Errorf("policy file (%s) is invalid: %w", path, err)
	}
	return nil
}

// Replace installs a new ssh_config document after checking that every host
// it names resolves to valid settings.
func (p *NegotiationPolicy) Replace(r io.Reader) error {
	cfg, err := ssh_config.Decode(r)
	if err != nil {
		return err
	}
	for _, h := range cfg.Hosts {
		for _, node := range h.Nodes {
			if kv, ok := node.(*ssh_config.KV); ok && strings.EqualFold(kv.Key, "Match") {
				return errors.New("match blocks are not supported")
			}
		}
		for _, pattern := range h.Patterns {
			host := pattern.String()
			if strings.ContainsAny(host, "*?!") {
				continue
			}
			if _, err := resolve(p.base, cfg, host); err != nil {
				return fmt.Errorf("host %s: %w", host, err)
			}
		}
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Base returns the settings applied when no Host block matches.
func (p *NegotiationPolicy) Base() TransportSettings {
	return p.base
}

// Resolve returns the settings for host.
func (p *NegotiationPolicy) Resolve(host string) (TransportSettings, error) {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()
	if cfg == nil {
		return p.base, nil
	}
	return resolve(p.base, cfg, host)
}

func resolve(base TransportSettings, cfg *ssh_config.Config, host string) (TransportSettings, error) {
	out := base
	out.Algorithms = Algorithms{
		Kex:         slices.Clone(base.Algorithms.Kex),
		HostKey:     slices.Clone(base.Algorithms.HostKey),
		Ciphers:     slices.Clone(base.Algorithms.Ciphers),
		MACs:        slices.Clone(base.Algorithms.MACs),
		Compression: slices.Clone(base.Algorithms.Compression),
	}
	lists := []struct {
		key  string
		list *[]string
	}{
		{"KexAlgorithms", &out.Algorithms.Kex},
		{"HostKeyAlgorithms", &out.Algorithms.HostKey},
		{"Ciphers", &out.Algorithms.Ciphers},
		{"MACs", &out.Algorithms.MACs},
	}
	for _, l := range lists {
		spec, err := cfg.Get(host, l.key)
		if err != nil {
			return TransportSettings{}, err
		}
		if spec == "" {
			continue
		}
		if *l.list, err = ApplyListSpec(*l.list, spec); err != nil {
			return TransportSettings{}, fmt.Errorf("%s: %w", l.key, err)
		}
		if len(*l.list) == 0 {
			return TransportSettings{}, fmt.Errorf("%s: %q leaves no algorithms", l.key, spec)
		}
	}

	compression, err := cfg.Get(host, "Compression")
	if err != nil {
		return TransportSettings{}, err
	}
	switch strings.ToLower(compression) {
	case "":
	case "yes":
		out.Algorithms.Compression = []string{"zlib@openssh.com", "zlib", "none"}
	case "no":
		out.Algorithms.Compression = []string{"none"}
	default:
		return TransportSettings{}, fmt.Errorf("Compression: expected yes or no, got %q", compression)
	}

	limit, err := cfg.Get(host, "RekeyLimit")
	if err != nil {
		return TransportSettings{}, err
	}
	if limit != "" {
		if out.Rekey, err = parseRekeyLimit(out.Rekey, limit); err != nil {
			return TransportSettings{}, fmt.Errorf("RekeyLimit: %w", err)
		}
	}

	if err := out.Algorithms.Validate(); err != nil {
		return TransportSettings{}, err
	}
	return out, nil
}

// parseRekeyLimit reads "<bytes> [<time>]". "default" keeps the current
// value and a time of "none" disables time based rekeying.
func parseRekeyLimit(current Rekey, value string) (Rekey, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 || len(fields) > 2 {
		return current, fmt.Errorf("expected <bytes> [<time>], got %q", value)
	}
	if fields[0] != "default" {
		n, err := ParseByteSize(fields[0])
		if err != nil {
			return current, err
		}
		current.Bytes = n
	}
	if len(fields) == 2 {
		switch fields[1] {
		case "default":
		case "none":
			current.Interval = 0
			current.TimeDisabled = true
		default:
			d, err := parseSSHTime(fields[1])
			if err != nil {
				return current, err
			}
			current.Interval = HumanReadableDuration(d)
			current.TimeDisabled = d == 0
		}
	}
	return current, nil
}

// parseSSHTime accepts OpenSSH time formats ("90", "10m", "1h30m") and Go
// durations.
func parseSSHTime(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var total time.Duration
	num := 0
	digits := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			num = num*10 + int(r-'0')
			digits = true
			continue
		}
		if !digits {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		var unit time.Duration
		switch r {
		case 's', 'S':
			unit = time.Second
		case 'm', 'M':
			unit = time.Minute
		case 'h', 'H':
			unit = time.Hour
		case 'd', 'D':
			unit = 24 * time.Hour
		case 'w', 'W':
			unit = 7 * 24 * time.Hour
		default:
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total += time.Duration(num) * unit
		num, digits = 0, false
	}
	if digits {
		total += time.Duration(num) * time.Second
	}
	return total, nil
}
