package negotiation

import (
	"bytes"
	"errors"
	"sshcore/domain/transport"
	"testing"
)

func TestNegotiate_ClientOrderWins(t *testing.T) {
	categories := []Category{
		CategoryKex, CategoryHostKey,
		CategoryCipherClientServer, CategoryCipherServerClient,
		CategoryMACClientServer, CategoryMACServerClient,
		CategoryCompressionClientServer, CategoryCompressionServerClient,
	}
	for _, c := range categories {
		t.Run(c.String(), func(t *testing.T) {
			got, err := Negotiate(c, []string{"a", "b"}, []string{"b", "a"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "a" {
				t.Fatalf("expected client's first choice a, got %s", got)
			}
			got, err = Negotiate(c, []string{"b", "a"}, []string{"a", "b"})
			if err != nil || got != "b" {
				t.Fatalf("expected b, got %s (%v)", got, err)
			}
		})
	}
}

func TestNegotiate_DisjointListsFail(t *testing.T) {
	_, err := Negotiate(CategoryKex, []string{"x"}, []string{"y"})
	if !errors.Is(err, transport.ErrNoCommonAlgorithm) {
		t.Fatalf("expected ErrNoCommonAlgorithm, got %v", err)
	}
	if _, err := Negotiate(CategoryCipherClientServer, nil, []string{"y"}); !errors.Is(err, transport.ErrNoCommonAlgorithm) {
		t.Fatalf("expected ErrNoCommonAlgorithm for empty list, got %v", err)
	}
}

func TestNegotiate_SkipsCapabilityMarkers(t *testing.T) {
	got, err := Negotiate(CategoryKex,
		[]string{"ext-info-c", "curve25519-sha256"},
		[]string{"ext-info-c", "curve25519-sha256"})
	if err != nil || got != "curve25519-sha256" {
		t.Fatalf("expected curve25519-sha256, got %q (%v)", got, err)
	}
}

func proposal(kex, ciphers, macs []string) *KexInit {
	return &KexInit{
		KexAlgorithms:           kex,
		HostKeyAlgorithms:       []string{"ssh-ed25519", "rsa-sha2-256"},
		CiphersClientServer:     ciphers,
		CiphersServerClient:     ciphers,
		MACsClientServer:        macs,
		MACsServerClient:        macs,
		CompressionClientServer: []string{"none", "zlib"},
		CompressionServerClient: []string{"none", "zlib"},
	}
}

func TestNegotiateAll(t *testing.T) {
	client := proposal(
		[]string{"kexA", "kexB"},
		[]string{"aes128-ctr", "aes256-ctr"},
		[]string{"hmac-sha2-256", "hmac-sha1"},
	)
	server := proposal(
		[]string{"kexB", "kexA"},
		[]string{"aes256-ctr", "aes128-ctr"},
		[]string{"hmac-sha1", "hmac-sha2-256"},
	)
	server.CompressionServerClient = []string{"zlib"}
	client.CompressionServerClient = []string{"none", "zlib"}

	got, err := NegotiateAll(client, server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := transport.NegotiatedAlgorithms{
		Kex:            "kexA",
		HostKey:        "ssh-ed25519",
		ClientToServer: transport.DirectionAlgorithms{Cipher: "aes128-ctr", MAC: "hmac-sha2-256", Compression: "none"},
		ServerToClient: transport.DirectionAlgorithms{Cipher: "aes128-ctr", MAC: "hmac-sha2-256", Compression: "zlib"},
	}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNegotiateAll_AEADSkipsMAC(t *testing.T) {
	client := proposal([]string{"k"}, []string{"aes128-gcm@openssh.com"}, []string{"hmac-sha2-256"})
	server := proposal([]string{"k"}, []string{"aes128-gcm@openssh.com"}, []string{"hmac-sha1"})
	got, err := NegotiateAll(client, server)
	if err != nil {
		t.Fatalf("MAC mismatch must not matter for AEAD ciphers: %v", err)
	}
	if got.ClientToServer.MAC != "" || got.ServerToClient.MAC != "" {
		t.Fatalf("expected no MAC, got %v", got)
	}
}

func TestNegotiateAll_FailsPerCategory(t *testing.T) {
	client := proposal([]string{"k"}, []string{"aes128-ctr"}, []string{"hmac-sha2-256"})
	server := proposal([]string{"k"}, []string{"aes128-ctr"}, []string{"hmac-sha1"})
	if _, err := NegotiateAll(client, server); !errors.Is(err, transport.ErrNoCommonAlgorithm) {
		t.Fatalf("expected ErrNoCommonAlgorithm, got %v", err)
	}
}

func TestKexInit_MarshalParse(t *testing.T) {
	k, err := NewKexInit(bytes.NewReader(bytes.Repeat([]byte{7}, 16)),
		[]string{"curve25519-sha256", "ext-info-c"},
		[]string{"ssh-ed25519"},
		[]string{"aes128-ctr"},
		[]string{"hmac-sha2-256"},
		[]string{"none"},
	)
	if err != nil {
		t.Fatal(err)
	}
	k.FirstKexFollows = true
	raw := k.Marshal()
	if raw[0] != transport.MsgKexInit {
		t.Fatalf("expected message number %d, got %d", transport.MsgKexInit, raw[0])
	}
	back, err := ParseKexInit(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back.Cookie != k.Cookie || !back.FirstKexFollows {
		t.Fatalf("cookie or flag lost: %+v", back)
	}
	if len(back.KexAlgorithms) != 2 || back.KexAlgorithms[1] != "ext-info-c" {
		t.Fatalf("unexpected kex list %v", back.KexAlgorithms)
	}
	if back.LanguagesClientServer != nil {
		t.Fatalf("expected empty languages, got %v", back.LanguagesClientServer)
	}
	if !bytes.Equal(back.Marshal(), raw) {
		t.Fatal("re-marshalled payload differs")
	}
}

func TestParseKexInit_Malformed(t *testing.T) {
	for _, raw := range [][]byte{nil, {20, 1, 2}, append([]byte{21}, make([]byte, 40)...), append([]byte{20}, make([]byte, 20)...)} {
		if _, err := ParseKexInit(raw); !errors.Is(err, transport.ErrProtocol) {
			t.Fatalf("expected ErrProtocol for %x, got %v", raw, err)
		}
	}
}

func TestWrongGuess(t *testing.T) {
	a := proposal([]string{"k1", "k2"}, nil, nil)
	b := proposal([]string{"k1"}, nil, nil)
	if WrongGuess(a, b) {
		t.Fatal("same first choices must be a right guess")
	}
	b.KexAlgorithms = []string{"k2", "k1"}
	if !WrongGuess(a, b) {
		t.Fatal("different first kex must be a wrong guess")
	}
	b.KexAlgorithms = []string{"k1"}
	b.HostKeyAlgorithms = []string{"rsa-sha2-256"}
	if !WrongGuess(a, b) {
		t.Fatal("different first host key must be a wrong guess")
	}
}
