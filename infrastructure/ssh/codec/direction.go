package codec

import "sshcore/domain/transport"

// compressionState tracks the compression algorithm of one direction. The
// zlib stream is created once and survives rekeys, like OpenSSH does.
type compressionState struct {
	name          string
	authenticated bool
	active        bool
}

func (s *compressionState) install(name string) {
	s.name = name
	s.refresh()
}

func (s *compressionState) enableDelayed() {
	s.authenticated = true
	s.refresh()
}

func (s *compressionState) refresh() {
	switch s.name {
	case CompressionZlib:
		s.active = true
	case CompressionDelayed:
		s.active = s.active || s.authenticated
	default:
		s.active = false
	}
}

func algorithmsOrNone(alg transport.DirectionAlgorithms) transport.DirectionAlgorithms {
	if alg.Cipher == "" {
		alg.Cipher = CipherNone
	}
	if alg.MAC == "" && !IsAEAD(alg.Cipher) {
		alg.MAC = MACNone
	}
	if alg.Compression == "" {
		alg.Compression = CompressionNone
	}
	return alg
}
