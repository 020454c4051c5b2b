package main

import (
	"os"

	"github.com/sitemedic/sitemedic/cmd/sitemedic/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
