package server

import (
	"sshcore/infrastructure/settings"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfiguration_IsValid(t *testing.T) {
	conf := NewDefaultConfiguration()
	if err := conf.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if !conf.TCP.Enabled || conf.WS.Enabled {
		t.Fatalf("expected only TCP enabled by default, got tcp=%v ws=%v", conf.TCP.Enabled, conf.WS.Enabled)
	}
	if len(conf.HostKeyFiles) != 1 || conf.HostKeyFiles[0] != DefaultHostKeyFile {
		t.Fatalf("expected the default host key path, got %v", conf.HostKeyFiles)
	}
	if conf.Transport.SoftwareVersion == "" {
		t.Fatal("expected transport defaults to be filled")
	}
}

func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{"no listener", func(c *Configuration) { c.TCP.Enabled = false }, "no listener"},
		{"bad tcp address", func(c *Configuration) { c.TCP.Address = "2222" }, "TCP.Address"},
		{"bad ws path", func(c *Configuration) { c.WS.Enabled = true; c.WS.Path = "ssh" }, "WS.Path"},
		{"same address", func(c *Configuration) {
			c.WS.Enabled = true
			c.WS.Address = c.TCP.Address
		}, "both"},
		{"negative workers", func(c *Configuration) { c.Workers = -1 }, "Workers"},
		{"negative stats interval", func(c *Configuration) { c.StatsInterval = settings.HumanReadableDuration(-time.Second) }, "StatsInterval"},
		{"bad transport", func(c *Configuration) { c.Transport.MaxPacketSize = 1024 }, "Transport"},
		{"ws only", func(c *Configuration) { c.TCP.Enabled = false; c.WS.Enabled = true }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := NewDefaultConfiguration()
			tt.mutate(conf)
			err := conf.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
