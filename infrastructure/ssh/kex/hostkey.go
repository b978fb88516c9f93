package kex

import (
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/wire"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultHostKeyAlgorithms is the signature algorithm preference order.
var DefaultHostKeyAlgorithms = []string{
	ssh.KeyAlgoED25519,
	ssh.KeyAlgoECDSA256,
	ssh.KeyAlgoECDSA384,
	ssh.KeyAlgoECDSA521,
	ssh.KeyAlgoRSASHA512,
	ssh.KeyAlgoRSASHA256,
	ssh.KeyAlgoRSA,
}

// KeyFormat maps a signature algorithm to the key format that produces it.
func KeyFormat(algorithm string) string {
	switch algorithm {
	case ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSASHA512:
		return ssh.KeyAlgoRSA
	}
	return algorithm
}

// HostKeyAlgorithms lists, in preference order, the algorithms the given
// signers can produce signatures for.
func HostKeyAlgorithms(preference []string, signers []ssh.Signer) []string {
	if len(preference) == 0 {
		preference = DefaultHostKeyAlgorithms
	}
	var out []string
	for _, algo := range preference {
		for _, s := range signers {
			if canSign(s, algo) {
				out = append(out, algo)
				break
			}
		}
	}
	return out
}

func canSign(s ssh.Signer, algorithm string) bool {
	if s.PublicKey().Type() != KeyFormat(algorithm) {
		return false
	}
	switch as := s.(type) {
	case ssh.MultiAlgorithmSigner:
		return slices.Contains(as.Algorithms(), algorithm)
	case ssh.AlgorithmSigner:
		return true
	}
	return s.PublicKey().Type() == algorithm
}

func signerFor(algorithm string, signers []ssh.Signer) (ssh.Signer, error) {
	for _, s := range signers {
		if canSign(s, algorithm) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no host key for %q", transport.ErrKeyExchange, algorithm)
}

// signHash signs the exchange hash and returns the signature blob:
// string format, string signature.
func signHash(rand io.Reader, s ssh.Signer, algorithm string, h []byte) ([]byte, error) {
	var (
		sig *ssh.Signature
		err error
	)
	if as, ok := s.(ssh.AlgorithmSigner); ok {
		sig, err = as.SignWithAlgorithm(rand, h, algorithm)
	} else {
		sig, err = s.Sign(rand, h)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sign exchange hash: %v", transport.ErrKeyExchange, err)
	}
	return wire.NewEncoder(len(sig.Blob) + 64).Text(sig.Format).String(sig.Blob).Bytes(), nil
}

// VerifySignature checks a host key signature blob over the exchange hash.
func VerifySignature(algorithm string, hostKey, h, sigBlob []byte) error {
	pub, err := ssh.ParsePublicKey(hostKey)
	if err != nil {
		return fmt.Errorf("%w: parse host key: %v", transport.ErrKeyExchange, err)
	}
	if pub.Type() != KeyFormat(algorithm) {
		return fmt.Errorf("%w: host key type %q does not match %q", transport.ErrKeyExchange, pub.Type(), algorithm)
	}
	d := wire.NewDecoder(sigBlob)
	format := d.Text()
	blob := d.String()
	if err := d.Finish(); err != nil {
		return malformed("signature", err)
	}
	if format != algorithm {
		return fmt.Errorf("%w: signature format %q, negotiated %q", transport.ErrKeyExchange, format, algorithm)
	}
	if err := pub.Verify(h, &ssh.Signature{Format: format, Blob: blob}); err != nil {
		return fmt.Errorf("%w: host signature: %v", transport.ErrKeyExchange, err)
	}
	return nil
}

// KnownHostsCallback returns a host key check backed by OpenSSH known_hosts files.
// A mismatch or unknown key is reported as ErrHostKeyRejected.
func KnownHostsCallback(files ...string) (ssh.HostKeyCallback, error) {
	cb, err := knownhosts.New(files...)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := cb(hostname, remote, key); err != nil {
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) && len(keyErr.Want) > 0 {
				return fmt.Errorf("%w: %s changed: %v", transport.ErrHostKeyRejected, hostname, err)
			}
			return fmt.Errorf("%w: %v", transport.ErrHostKeyRejected, err)
		}
		return nil
	}, nil
}
