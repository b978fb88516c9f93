package transport

import (
	"errors"
	"sshcore/domain/transport"
	"strings"
	"testing"
)

func TestCheckVersion(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
	}{
		{"SSH-2.0-OpenSSH_9.6", true},
		{"SSH-2.0-OpenSSH_9.6 Ubuntu-3ubuntu13", true},
		{"SSH-1.99-Cisco-1.25", true},
		{"SSH-1.5-legacy", false},
		{"SSH-2.0-", false},
		{"SSH-2.0", false},
		{"SSH-2.0-bad\x01name", false},
	}
	for _, tc := range cases {
		err := checkVersion([]byte(tc.line))
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.line, err)
		}
		if !tc.ok && !errors.Is(err, transport.ErrProtocolVersion) {
			t.Fatalf("%q: expected a version error, got %v", tc.line, err)
		}
	}
}

func TestVersionReaderSplitInput(t *testing.T) {
	r := versionReader{}
	line, _, err := r.read([]byte("SSH-2.0-Op"))
	if err != nil || line != nil {
		t.Fatalf("expected to wait for more input, got %q %v", line, err)
	}
	line, rest, err := r.read([]byte("enSSH_9.6\r\n\x00\x00"))
	if err != nil {
		t.Fatal(err)
	}
	if string(line) != "SSH-2.0-OpenSSH_9.6" {
		t.Fatalf("unexpected line %q", line)
	}
	if len(rest) != 2 {
		t.Fatalf("expected the packet bytes to be returned, got %q", rest)
	}
}

func TestVersionReaderBareLF(t *testing.T) {
	r := versionReader{}
	line, _, err := r.read([]byte("SSH-2.0-tool\n"))
	if err != nil || string(line) != "SSH-2.0-tool" {
		t.Fatalf("expected a bare LF to end the line, got %q %v", line, err)
	}
}

func TestVersionReaderBanner(t *testing.T) {
	client := versionReader{isClient: true}
	line, _, err := client.read([]byte("Welcome\r\nauthorized use only\r\nSSH-2.0-srv\r\n"))
	if err != nil || string(line) != "SSH-2.0-srv" {
		t.Fatalf("expected the client to skip banner lines, got %q %v", line, err)
	}

	server := versionReader{}
	if _, _, err := server.read([]byte("Welcome\r\n")); !errors.Is(err, transport.ErrProtocolVersion) {
		t.Fatalf("expected the server to reject a banner, got %v", err)
	}
}

func TestVersionReaderLongLine(t *testing.T) {
	r := versionReader{}
	if _, _, err := r.read([]byte("SSH-2.0-" + strings.Repeat("x", 300))); !errors.Is(err, transport.ErrProtocolVersion) {
		t.Fatalf("expected an overlong line to be rejected, got %v", err)
	}
}

func TestIdentificationLine(t *testing.T) {
	if got := string(IdentificationLine("sshcore_1.0")); got != "SSH-2.0-sshcore_1.0" {
		t.Fatalf("unexpected line %q", got)
	}
}
