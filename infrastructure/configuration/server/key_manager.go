package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sshcore/infrastructure/ssh/kex"

	"golang.org/x/crypto/ssh"
)

// KeyManager loads the server's host keys and its transient RSA key.
type KeyManager interface {
	// PrepareKeys guarantees that at least one host key is available,
	// generating an Ed25519 key when none is configured.
	PrepareKeys() ([]ssh.Signer, error)
	RSAKey() (*rsa.PrivateKey, error)
}

const privateKeyEnvVar = "ED25519_PRIVATE_KEY"

type HostKeyManager struct {
	configurationManager ConfigurationManager
}

func NewHostKeyManager(store ConfigurationManager) KeyManager {
	return &HostKeyManager{configurationManager: store}
}

// PrepareKeys loads every configured key file that exists. A base64 Ed25519
// private key in ED25519_PRIVATE_KEY takes precedence over generating one;
// a generated key is written to the first configured path.
func (m *HostKeyManager) PrepareKeys() ([]ssh.Signer, error) {
	conf, err := m.configurationManager.Configuration()
	if err != nil {
		return nil, err
	}

	var signers []ssh.Signer
	for _, path := range conf.HostKeyFiles {
		signer, loadErr := loadHostKey(path)
		if errors.Is(loadErr, os.ErrNotExist) {
			continue
		}
		if loadErr != nil {
			return nil, loadErr
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		return signers, nil
	}

	if signer, envErr := keyFromEnv(); signer != nil || envErr != nil {
		if envErr != nil {
			return nil, envErr
		}
		return []ssh.Signer{signer}, nil
	}

	signer, err := generateHostKey(conf.HostKeyFiles[0])
	if err != nil {
		return nil, err
	}
	return []ssh.Signer{signer}, nil
}

// RSAKey returns the configured transient RSA key, or nil when key
// exchange should generate one.
func (m *HostKeyManager) RSAKey() (*rsa.PrivateKey, error) {
	conf, err := m.configurationManager.Configuration()
	if err != nil {
		return nil, err
	}
	if conf.RSAKeyFile == "" {
		return nil, nil
	}
	pemBytes, err := os.ReadFile(conf.RSAKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read RSA key: %w", err)
	}
	key, err := kex.LoadTransientRSAKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("RSA key (%s): %w", conf.RSAKeyFile, err)
	}
	return key, nil
}

func loadHostKey(path string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("host key (%s) is invalid: %w", path, err)
	}
	return signer, nil
}

func keyFromEnv() (ssh.Signer, error) {
	encoded := os.Getenv(privateKeyEnvVar)
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: got %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return ssh.NewSignerFromKey(ed25519.PrivateKey(raw))
}

func generateHostKey(path string) (ssh.Signer, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key pair: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(private, "sshcore host key")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("failed to store host key: %w", err)
	}
	return ssh.NewSignerFromKey(private)
}
