package settings

import (
	"fmt"
	"path"
	"slices"
	"sshcore/infrastructure/ssh/codec"
	"sshcore/infrastructure/ssh/kex"
	"strings"
)

// Algorithms holds the local preference list per negotiation category.
// Empty lists fall back to the built-in defaults.
type Algorithms struct {
	Kex         []string `json:"Kex,omitempty"`
	HostKey     []string `json:"HostKey,omitempty"`
	Ciphers     []string `json:"Ciphers,omitempty"`
	MACs        []string `json:"MACs,omitempty"`
	Compression []string `json:"Compression,omitempty"`
}

func DefaultAlgorithms() Algorithms {
	return Algorithms{
		Kex:         slices.Clone(kex.DefaultAlgorithms),
		HostKey:     slices.Clone(kex.DefaultHostKeyAlgorithms),
		Ciphers:     slices.Clone(codec.DefaultCiphers),
		MACs:        slices.Clone(codec.DefaultMACs),
		Compression: slices.Clone(codec.DefaultCompressions),
	}
}

func (a Algorithms) withDefaults() Algorithms {
	d := DefaultAlgorithms()
	if len(a.Kex) == 0 {
		a.Kex = d.Kex
	}
	if len(a.HostKey) == 0 {
		a.HostKey = d.HostKey
	}
	if len(a.Ciphers) == 0 {
		a.Ciphers = d.Ciphers
	}
	if len(a.MACs) == 0 {
		a.MACs = d.MACs
	}
	if len(a.Compression) == 0 {
		a.Compression = d.Compression
	}
	return a
}

// Validate rejects names no registry knows.
func (a Algorithms) Validate() error {
	check := func(category string, names []string, supported func(string) bool) error {
		for _, n := range names {
			if !supported(n) {
				return fmt.Errorf("unsupported %s algorithm %q", category, n)
			}
		}
		return nil
	}
	hostKeySupported := func(n string) bool { return slices.Contains(kex.DefaultHostKeyAlgorithms, n) }
	if err := check("kex", a.Kex, kex.Supported); err != nil {
		return err
	}
	if err := check("host key", a.HostKey, hostKeySupported); err != nil {
		return err
	}
	if err := check("cipher", a.Ciphers, codec.SupportedCipher); err != nil {
		return err
	}
	if err := check("MAC", a.MACs, codec.SupportedMAC); err != nil {
		return err
	}
	return check("compression", a.Compression, codec.SupportedCompression)
}

// ApplyListSpec applies an OpenSSH algorithm list specification to base.
// "+a,b" appends, "-a,b" removes (wildcards allowed), "^a,b" moves to the
// front, and a plain list replaces base.
func ApplyListSpec(base []string, spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return slices.Clone(base), nil
	}
	op := spec[0]
	if op == '+' || op == '-' || op == '^' {
		spec = spec[1:]
	}
	var names []string
	for _, n := range strings.Split(spec, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty algorithm list %q", spec)
	}

	switch op {
	case '+':
		out := slices.Clone(base)
		for _, n := range names {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
		return out, nil
	case '-':
		var out []string
		for _, b := range base {
			if !matchesAny(b, names) {
				out = append(out, b)
			}
		}
		return out, nil
	case '^':
		out := slices.Clone(names)
		for _, b := range base {
			if !slices.Contains(names, b) {
				out = append(out, b)
			}
		}
		return out, nil
	}
	return names, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
