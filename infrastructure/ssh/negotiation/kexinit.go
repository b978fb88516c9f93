// Package negotiation holds the KEXINIT message and the algorithm negotiator.
package negotiation

import (
	"fmt"
	"io"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/wire"
)

// KexInit is SSH_MSG_KEXINIT (RFC 4253 §7.1).
type KexInit struct {
	Cookie                  [16]byte
	KexAlgorithms           []string
	HostKeyAlgorithms       []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

// NewKexInit builds a proposal with a random cookie. The same lists are used
// for both directions.
func NewKexInit(random io.Reader, kex, hostKeys, ciphers, macs, compressions []string) (*KexInit, error) {
	k := &KexInit{
		KexAlgorithms:           kex,
		HostKeyAlgorithms:       hostKeys,
		CiphersClientServer:     ciphers,
		CiphersServerClient:     ciphers,
		MACsClientServer:        macs,
		MACsServerClient:        macs,
		CompressionClientServer: compressions,
		CompressionServerClient: compressions,
	}
	if _, err := io.ReadFull(random, k.Cookie[:]); err != nil {
		return nil, fmt.Errorf("kexinit cookie: %w", err)
	}
	return k, nil
}

// Marshal returns the full payload, message number included. These exact
// bytes feed the exchange hash.
func (k *KexInit) Marshal() []byte {
	e := wire.NewEncoder(512).
		Byte(transport.MsgKexInit).
		Raw(k.Cookie[:])
	for _, list := range k.lists() {
		e.NameList(*list)
	}
	return e.Bool(k.FirstKexFollows).Uint32(k.Reserved).Bytes()
}

// ParseKexInit decodes a KEXINIT payload. Trailing bytes are ignored for
// forward compatibility.
func ParseKexInit(payload []byte) (*KexInit, error) {
	if len(payload) < 17 || payload[0] != transport.MsgKexInit {
		return nil, fmt.Errorf("%w: malformed KEXINIT", transport.ErrProtocol)
	}
	k := &KexInit{}
	copy(k.Cookie[:], payload[1:17])
	d := wire.NewDecoder(payload[17:])
	for _, list := range k.lists() {
		*list = d.NameList()
	}
	k.FirstKexFollows = d.Bool()
	k.Reserved = d.Uint32()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: malformed KEXINIT: %v", transport.ErrProtocol, err)
	}
	return k, nil
}

func (k *KexInit) lists() []*[]string {
	return []*[]string{
		&k.KexAlgorithms,
		&k.HostKeyAlgorithms,
		&k.CiphersClientServer,
		&k.CiphersServerClient,
		&k.MACsClientServer,
		&k.MACsServerClient,
		&k.CompressionClientServer,
		&k.CompressionServerClient,
		&k.LanguagesClientServer,
		&k.LanguagesServerClient,
	}
}
