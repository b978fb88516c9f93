package settings

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const testPolicy = `
Host legacy.example.com
  KexAlgorithms +diffie-hellman-group14-sha1
  Ciphers aes128-ctr,aes256-ctr
  MACs -*-etm@openssh.com
  RekeyLimit 1M 30s

Host *.internal
  Ciphers ^aes256-gcm@openssh.com
  Compression yes
  RekeyLimit default none

Host *
  Ciphers chacha20-poly1305@openssh.com,aes128-gcm@openssh.com
`

func TestNegotiationPolicy_Resolve(t *testing.T) {
	p, err := ParseNegotiationPolicy(TransportSettings{}, strings.NewReader(testPolicy))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	base := DefaultTransportSettings()

	legacy, err := p.Resolve("legacy.example.com")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if last := legacy.Algorithms.Kex[len(legacy.Algorithms.Kex)-1]; last != "diffie-hellman-group14-sha1" {
		t.Fatalf("expected appended kex, got %v", legacy.Algorithms.Kex)
	}
	// First match wins: the catch-all block must not override Ciphers.
	if !slices.Equal(legacy.Algorithms.Ciphers, []string{"aes128-ctr", "aes256-ctr"}) {
		t.Fatalf("unexpected ciphers %v", legacy.Algorithms.Ciphers)
	}
	for _, m := range legacy.Algorithms.MACs {
		if strings.HasSuffix(m, "-etm@openssh.com") {
			t.Fatalf("expected etm MACs removed, got %v", legacy.Algorithms.MACs)
		}
	}
	if legacy.Rekey.Bytes != 1<<20 || legacy.Rekey.Interval.Duration() != 30*time.Second {
		t.Fatalf("unexpected rekey %+v", legacy.Rekey)
	}

	internal, err := p.Resolve("db.internal")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if internal.Algorithms.Ciphers[0] != "aes256-gcm@openssh.com" || len(internal.Algorithms.Ciphers) != len(base.Algorithms.Ciphers) {
		t.Fatalf("expected aes256-gcm moved to front, got %v", internal.Algorithms.Ciphers)
	}
	if internal.Algorithms.Compression[0] != "zlib@openssh.com" {
		t.Fatalf("expected compression enabled, got %v", internal.Algorithms.Compression)
	}
	if internal.Rekey.Bytes != base.Rekey.Bytes || internal.Rekey.Interval != 0 {
		t.Fatalf("expected default bytes and no time limit, got %+v", internal.Rekey)
	}

	other, err := p.Resolve("example.org")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !slices.Equal(other.Algorithms.Ciphers, []string{"chacha20-poly1305@openssh.com", "aes128-gcm@openssh.com"}) {
		t.Fatalf("unexpected ciphers %v", other.Algorithms.Ciphers)
	}
	if !slices.Equal(other.Algorithms.Kex, base.Algorithms.Kex) {
		t.Fatalf("expected base kex, got %v", other.Algorithms.Kex)
	}
}

func TestNegotiationPolicy_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := ParseNegotiationPolicy(TransportSettings{}, strings.NewReader("Host a\n  Ciphers blowfish-cbc\n"))
	if err == nil {
		t.Fatal("expected error for unsupported cipher")
	}
}

func TestNegotiationPolicy_RejectsEmptyResult(t *testing.T) {
	_, err := ParseNegotiationPolicy(TransportSettings{}, strings.NewReader("Host a\n  KexAlgorithms -*\n"))
	if err == nil {
		t.Fatal("expected error when every kex algorithm is removed")
	}
}

func TestNegotiationPolicy_RejectsMatchBlocks(t *testing.T) {
	_, err := ParseNegotiationPolicy(TransportSettings{}, strings.NewReader("Match host a\n  Ciphers aes128-ctr\n"))
	if err == nil {
		t.Fatal("expected error for a Match block")
	}
}

func TestNegotiationPolicy_NoDocument(t *testing.T) {
	p := NewNegotiationPolicy(TransportSettings{})
	s, err := p.Resolve("anything")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !slices.Equal(s.Algorithms.Ciphers, p.Base().Algorithms.Ciphers) {
		t.Fatalf("expected base ciphers, got %v", s.Algorithms.Ciphers)
	}
}

func TestNegotiationPolicy_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy")
	p, err := LoadNegotiationPolicy(TransportSettings{}, path)
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if err := os.WriteFile(path, []byte("Host h\n  Ciphers aes128-ctr\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p.Reload(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	s, _ := p.Resolve("h")
	if !slices.Equal(s.Algorithms.Ciphers, []string{"aes128-ctr"}) {
		t.Fatalf("expected reloaded ciphers, got %v", s.Algorithms.Ciphers)
	}
	if err := os.WriteFile(path, []byte("Host h\n  Ciphers nope\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p.Reload(path); err == nil {
		t.Fatal("expected invalid reload to fail")
	}
	s, _ = p.Resolve("h")
	if !slices.Equal(s.Algorithms.Ciphers, []string{"aes128-ctr"}) {
		t.Fatalf("expected previous document kept, got %v", s.Algorithms.Ciphers)
	}
}

func TestParseSSHTime(t *testing.T) {
	tests := map[string]time.Duration{
		"90":    90 * time.Second,
		"10m":   10 * time.Minute,
		"1h30m": 90 * time.Minute,
		"1d":    24 * time.Hour,
		"2w":    14 * 24 * time.Hour,
		"1h30":  time.Hour + 30*time.Second,
	}
	for in, want := range tests {
		got, err := parseSSHTime(in)
		if err != nil || got != want {
			t.Errorf("parseSSHTime(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"x", "h1"} {
		if _, err := parseSSHTime(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
