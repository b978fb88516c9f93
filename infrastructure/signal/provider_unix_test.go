//go:build !windows

package signal

import (
	"os"
	"slices"
	"syscall"
	"testing"
)

func TestShutdownSignals_Unix_ExactSetAndOrder(t *testing.T) {
	t.Parallel()

	got := NewDefaultProvider().ShutdownSignals()
	want := []os.Signal{
		os.Interrupt,    // SIGINT
		syscall.SIGTERM, // TERM
	}
	if !slices.Equal(got, want) {
		t.Fatalf("unexpected shutdown signals: got %v, want %v", got, want)
	}
}

func TestReloadSignals_Unix_IsHangup(t *testing.T) {
	t.Parallel()

	got := NewDefaultProvider().ReloadSignals()
	if len(got) != 1 || got[0] != syscall.SIGHUP {
		t.Fatalf("expected only SIGHUP, got %v", got)
	}
	if slices.Contains(NewDefaultProvider().ShutdownSignals(), os.Signal(syscall.SIGHUP)) {
		t.Fatal("SIGHUP must not shut the server down")
	}
}
