package main

import (
	"os"

	"github.com/stwalsh4118/siteplan/cmd/siteplan/commands"
)

// Version information, set during build
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersionInfo(version, commit)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
