package server

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type ConfigurationManager interface {
	Configuration() (*Configuration, error)
	InvalidateCache()
}

type Manager struct {
	path   string
	reader Reader
	writer Writer
}

func NewManager(resolver Resolver) (ConfigurationManager, error) {
	path, pathErr := resolver.Resolve()
	if pathErr != nil {
		return nil, fmt.Errorf("failed to resolve server configuration path: %w", pathErr)
	}
	return NewManagerWithReader(resolver, NewTTLReader(newDefaultReader(path), 15*time.Minute))
}

func NewManagerWithReader(resolver Resolver, reader Reader) (ConfigurationManager, error) {
	path, pathErr := resolver.Resolve()
	if pathErr != nil {
		return nil, fmt.Errorf("failed to resolve server configuration path: %w", pathErr)
	}
	return &Manager{
		path:   path,
		reader: reader,
		writer: newDefaultWriter(path),
	}, nil
}

// Configuration reads and validates the configuration, writing the defaults
// first when the file does not exist yet.
func (m *Manager) Configuration() (*Configuration, error) {
	if _, statErr := os.Stat(m.path); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return nil, statErr
		}
		if writeErr := m.writer.Write(*NewDefaultConfiguration()); writeErr != nil {
			return nil, fmt.Errorf("could not write default configuration: %w", writeErr)
		}
	}

	conf, err := m.reader.read()
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("configuration file (%s) is invalid: %w", m.path, err)
	}
	return conf, nil
}

// InvalidateCache clears the cached configuration if the reader supports it.
func (m *Manager) InvalidateCache() {
	if ttlReader, ok := m.reader.(*TTLReader); ok {
		ttlReader.InvalidateCache()
	}
}
