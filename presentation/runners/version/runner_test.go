package version

import (
	"bytes"
	"sshcore/domain/app"
	"strings"
	"testing"
)

func TestRunner_Run_PrintsVersion(t *testing.T) {
	prevTag := Tag
	t.Cleanup(func() { Tag = prevTag })

	Tag = "v1.2.3-test" // imitate ldflags injection

	var out bytes.Buffer
	if err := NewRunner(&out).Run(); err != nil {
		t.Fatal(err)
	}
	want := app.Name + " v1.2.3-test"
	if !strings.Contains(out.String(), want) {
		t.Fatalf("stdout = %q, want substring %q", out.String(), want)
	}
}

func TestCurrent(t *testing.T) {
	prevTag := Tag
	t.Cleanup(func() { Tag = prevTag })

	Tag = " v0.3.0 "
	if got := Current(); got != "v0.3.0" {
		t.Fatalf("expected trimmed tag, got %q", got)
	}
}
