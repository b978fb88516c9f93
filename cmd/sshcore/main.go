package main

import (
	"os"

	"sshcore/cmd/sshcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
