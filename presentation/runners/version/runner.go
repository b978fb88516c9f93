package version

import (
	"fmt"
	"io"
	"sshcore/domain/app"
	"strings"
)

// Tag will be set via ldflags by CI release workflow
var Tag = "dev-build"

// Current returns the build tag without surrounding whitespace.
func Current() string {
	return strings.TrimSpace(Tag)
}

type Runner struct {
	out io.Writer
}

func NewRunner(out io.Writer) *Runner { return &Runner{out: out} }

func (r *Runner) Run() error {
	_, err := fmt.Fprintf(r.out, "%s %s\n",
		app.Name,
		Current(),
	)
	return err
}
