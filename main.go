package main

import (
	"os"

	"github.com/spigell/avatar-synth/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
