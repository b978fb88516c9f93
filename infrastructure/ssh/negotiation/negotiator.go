package negotiation

import (
	"fmt"
	"slices"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/codec"
	"strings"
)

// Category is one of the eight independently negotiated algorithm slots.
type Category int

const (
	CategoryKex Category = iota
	CategoryHostKey
	CategoryCipherClientServer
	CategoryCipherServerClient
	CategoryMACClientServer
	CategoryMACServerClient
	CategoryCompressionClientServer
	CategoryCompressionServerClient
)

func (c Category) String() string {
	switch c {
	case CategoryKex:
		return "key exchange"
	case CategoryHostKey:
		return "host key"
	case CategoryCipherClientServer:
		return "client to server cipher"
	case CategoryCipherServerClient:
		return "server to client cipher"
	case CategoryMACClientServer:
		return "client to server MAC"
	case CategoryMACServerClient:
		return "server to client MAC"
	case CategoryCompressionClientServer:
		return "client to server compression"
	case CategoryCompressionServerClient:
		return "server to client compression"
	default:
		return fmt.Sprintf("category %d", int(c))
	}
}

// Negotiate returns the first entry of the client's list that the server
// also supports.
func Negotiate(category Category, client, server []string) (string, error) {
	for _, name := range client {
		if isMarker(name) {
			continue
		}
		if slices.Contains(server, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w for %s: client [%s], server [%s]",
		transport.ErrNoCommonAlgorithm, category, strings.Join(client, ","), strings.Join(server, ","))
}

// isMarker reports names that only signal capabilities and are never selected.
func isMarker(name string) bool {
	return strings.HasPrefix(name, "ext-info-") || strings.HasPrefix(name, "kex-strict-")
}

// NegotiateAll runs Negotiate for every category. MACs are not negotiated for
// directions whose cipher authenticates itself.
func NegotiateAll(client, server *KexInit) (transport.NegotiatedAlgorithms, error) {
	var (
		result transport.NegotiatedAlgorithms
		err    error
	)
	if result.Kex, err = Negotiate(CategoryKex, client.KexAlgorithms, server.KexAlgorithms); err != nil {
		return transport.NegotiatedAlgorithms{}, err
	}
	if result.HostKey, err = Negotiate(CategoryHostKey, client.HostKeyAlgorithms, server.HostKeyAlgorithms); err != nil {
		return transport.NegotiatedAlgorithms{}, err
	}
	if result.ClientToServer, err = negotiateDirection(
		CategoryCipherClientServer, CategoryMACClientServer, CategoryCompressionClientServer,
		client.CiphersClientServer, server.CiphersClientServer,
		client.MACsClientServer, server.MACsClientServer,
		client.CompressionClientServer, server.CompressionClientServer,
	); err != nil {
		return transport.NegotiatedAlgorithms{}, err
	}
	if result.ServerToClient, err = negotiateDirection(
		CategoryCipherServerClient, CategoryMACServerClient, CategoryCompressionServerClient,
		client.CiphersServerClient, server.CiphersServerClient,
		client.MACsServerClient, server.MACsServerClient,
		client.CompressionServerClient, server.CompressionServerClient,
	); err != nil {
		return transport.NegotiatedAlgorithms{}, err
	}
	return result, nil
}

func negotiateDirection(
	cipherCat, macCat, compCat Category,
	clientCiphers, serverCiphers, clientMACs, serverMACs, clientComp, serverComp []string,
) (transport.DirectionAlgorithms, error) {
	var (
		dir transport.DirectionAlgorithms
		err error
	)
	if dir.Cipher, err = Negotiate(cipherCat, clientCiphers, serverCiphers); err != nil {
		return dir, err
	}
	if !codec.IsAEAD(dir.Cipher) {
		if dir.MAC, err = Negotiate(macCat, clientMACs, serverMACs); err != nil {
			return dir, err
		}
	}
	if dir.Compression, err = Negotiate(compCat, clientComp, serverComp); err != nil {
		return dir, err
	}
	return dir, nil
}

// WrongGuess reports whether a packet sent under first_kex_packet_follows
// must be discarded: the guess is right only when both sides list the same
// preferred key exchange and host key algorithms.
func WrongGuess(client, server *KexInit) bool {
	if len(client.KexAlgorithms) == 0 || len(server.KexAlgorithms) == 0 ||
		len(client.HostKeyAlgorithms) == 0 || len(server.HostKeyAlgorithms) == 0 {
		return true
	}
	return client.KexAlgorithms[0] != server.KexAlgorithms[0] ||
		client.HostKeyAlgorithms[0] != server.HostKeyAlgorithms[0]
}
