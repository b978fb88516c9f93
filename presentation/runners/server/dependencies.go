package server

import (
	"sshcore/application/logging"
	"sshcore/application/network/connection"
	serverConfiguration "sshcore/infrastructure/configuration/server"
)

type AppDependencies interface {
	Configuration() serverConfiguration.Configuration
	KeyManager() serverConfiguration.KeyManager
	ConfigurationManager() serverConfiguration.ConfigurationManager
	// Services are the SSH services clients may request once keys are in place.
	Services() connection.Registry
	Logger() logging.Logger
}

type Dependencies struct {
	configuration        serverConfiguration.Configuration
	keyManager           serverConfiguration.KeyManager
	configurationManager serverConfiguration.ConfigurationManager
	services             connection.Registry
	logger               logging.Logger
}

func NewDependencies(
	configuration serverConfiguration.Configuration,
	keyManager serverConfiguration.KeyManager,
	configurationManager serverConfiguration.ConfigurationManager,
	services connection.Registry,
	logger logging.Logger,
) AppDependencies {
	return &Dependencies{
		configuration:        configuration,
		keyManager:           keyManager,
		configurationManager: configurationManager,
		services:             services,
		logger:               logger,
	}
}

func (s Dependencies) Configuration() serverConfiguration.Configuration {
	return s.configuration
}

func (s Dependencies) KeyManager() serverConfiguration.KeyManager {
	return s.keyManager
}

func (s Dependencies) ConfigurationManager() serverConfiguration.ConfigurationManager {
	return s.configurationManager
}

func (s Dependencies) Services() connection.Registry {
	return s.services
}

func (s Dependencies) Logger() logging.Logger {
	return s.logger
}
