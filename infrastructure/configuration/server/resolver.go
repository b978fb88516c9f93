package server

import (
	"os"
	"path/filepath"
)

// Resolver locates the server configuration file.
type Resolver interface {
	Resolve() (string, error)
}

type defaultResolver struct{}

func NewServerResolver() Resolver {
	return defaultResolver{}
}

func (defaultResolver) Resolve() (string, error) {
	return filepath.Join(string(os.PathSeparator), "etc", "sshcore", "server_configuration.json"), nil
}

// PathResolver resolves to a fixed path, e.g. one given on the command line.
type PathResolver string

func (p PathResolver) Resolve() (string, error) {
	return string(p), nil
}
