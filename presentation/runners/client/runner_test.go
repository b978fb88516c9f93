package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sshcore/domain/transport"
	"sshcore/infrastructure/reactor"
	"sshcore/infrastructure/settings"
	sshTransport "sshcore/infrastructure/ssh/transport"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type clientQuietLogger struct{}

func (clientQuietLogger) Printf(string, ...any) {}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// startServer serves SSH on loopback until the test ends.
func startServer(t *testing.T, signer ssh.Signer) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rc := reactor.New(reactor.Options{Workers: 1, Logger: clientQuietLogger{}})
	go func() { _ = rc.Run(ctx) }()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = rc.Serve(ctx, ln, func(net.Conn) (sshTransport.Config, error) {
			return sshTransport.Config{HostKeys: []ssh.Signer{signer}}, nil
		})
	}()
	return ln.Addr().String()
}

func writeKnownHosts(t *testing.T, address string, key ssh.PublicKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(address)}, key) + "\n"
	if err := os.WriteFile(path, []byte(line), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunner_Run_InsecureProbe(t *testing.T) {
	signer := newSigner(t)
	address := startServer(t, signer)

	report, err := NewRunner(Options{Address: address, Protocol: settings.TCP, Insecure: true}, clientQuietLogger{}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !bytes.Equal(report.HostKey.Marshal(), signer.PublicKey().Marshal()) {
		t.Fatal("expected the server host key in the report")
	}
	if report.Algorithms.Kex == "" || report.Algorithms.ClientToServer.Cipher == "" {
		t.Fatalf("expected negotiated algorithms, got %s", report.Algorithms)
	}
	if len(report.SessionID) == 0 {
		t.Fatal("expected a session id")
	}

	var out bytes.Buffer
	if err := report.Print(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), ssh.FingerprintSHA256(signer.PublicKey())) {
		t.Fatalf("expected the fingerprint in the output, got %q", out.String())
	}
}

func TestRunner_Run_KnownHosts(t *testing.T) {
	signer := newSigner(t)
	address := startServer(t, signer)

	known := writeKnownHosts(t, address, signer.PublicKey())
	if _, err := NewRunner(Options{Address: address, Protocol: settings.TCP, KnownHosts: []string{known}}, clientQuietLogger{}).
		Run(context.Background()); err != nil {
		t.Fatalf("expected a known host to be accepted, got %v", err)
	}

	other := writeKnownHosts(t, address, newSigner(t).PublicKey())
	_, err := NewRunner(Options{Address: address, Protocol: settings.TCP, KnownHosts: []string{other}}, clientQuietLogger{}).
		Run(context.Background())
	if !errors.Is(err, transport.ErrHostKeyRejected) {
		t.Fatalf("expected ErrHostKeyRejected, got %v", err)
	}
}

func TestRunner_Run_PolicyNarrowsAlgorithms(t *testing.T) {
	signer := newSigner(t)
	address := startServer(t, signer)

	policy := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(policy, []byte("Host 127.0.0.1\n  Ciphers aes128-ctr\n  KexAlgorithms ecdh-sha2-nistp256\n"), 0600); err != nil {
		t.Fatal(err)
	}
	report, err := NewRunner(Options{Address: address, Protocol: settings.TCP, Insecure: true, PolicyFile: policy}, clientQuietLogger{}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if report.Algorithms.Kex != "ecdh-sha2-nistp256" || report.Algorithms.ClientToServer.Cipher != "aes128-ctr" {
		t.Fatalf("expected the policy to apply, got %s", report.Algorithms)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"valid insecure", Options{Address: "h:22", Protocol: settings.TCP, Insecure: true}, true},
		{"valid known hosts", Options{Address: "h:22", Protocol: settings.WS, KnownHosts: []string{"kh"}}, true},
		{"missing address", Options{Protocol: settings.TCP, Insecure: true}, false},
		{"unknown protocol", Options{Address: "h:22", Insecure: true}, false},
		{"no host key check", Options{Address: "h:22", Protocol: settings.TCP}, false},
		{"bad algorithm", Options{Address: "h:22", Protocol: settings.TCP, Insecure: true,
			Transport: settings.TransportSettings{Algorithms: settings.Algorithms{Ciphers: []string{"rot13"}}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err == nil) != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
}

func TestOptions_HostNames(t *testing.T) {
	tests := []struct {
		address, hostPort, policyHost string
	}{
		{"example.com:22", "example.com:22", "example.com"},
		{"wss://example.com:443/ssh", "example.com:443", "example.com"},
		{"ws://[::1]:8022/ssh", "[::1]:8022", "::1"},
		{"example.com", "example.com", "example.com"},
	}
	for _, tt := range tests {
		o := Options{Address: tt.address}
		if got := o.hostPort(); got != tt.hostPort {
			t.Fatalf("%s: expected host:port %q, got %q", tt.address, tt.hostPort, got)
		}
		if got := o.policyHost(); got != tt.policyHost {
			t.Fatalf("%s: expected policy host %q, got %q", tt.address, tt.policyHost, got)
		}
	}
}
