package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Reader interface {
	read() (*Configuration, error)
}

const (
	tcpAddressEnvVar = "SSHCORE_TCP_ADDRESS"
	wsAddressEnvVar  = "SSHCORE_WS_ADDRESS"
	enableTCPEnvVar  = "SSHCORE_ENABLE_TCP"
	enableWSEnvVar   = "SSHCORE_ENABLE_WS"
)

type defaultReader struct {
	path string
}

func newDefaultReader(path string) *defaultReader {
	return &defaultReader{path: path}
}

func (r *defaultReader) read() (*Configuration, error) {
	fileBytes, readFileErr := os.ReadFile(r.path)
	if readFileErr != nil {
		return nil, fmt.Errorf("configuration file (%s) is unreadable: %w", r.path, readFileErr)
	}

	var configuration Configuration
	if err := json.Unmarshal(fileBytes, &configuration); err != nil {
		return nil, fmt.Errorf("configuration file (%s) is invalid: %w", r.path, err)
	}

	setEnvListeners(&configuration)
	return configuration.EnsureDefaults(), nil
}

func setEnvListeners(conf *Configuration) {
	if addr := os.Getenv(tcpAddressEnvVar); addr != "" {
		conf.TCP.Address = addr
	}
	if addr := os.Getenv(wsAddressEnvVar); addr != "" {
		conf.WS.Address = addr
	}
	if v, err := strconv.ParseBool(os.Getenv(enableTCPEnvVar)); err == nil {
		conf.TCP.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv(enableWSEnvVar)); err == nil {
		conf.WS.Enabled = v
	}
}
