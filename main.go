package main

import (
	"github.com/marcus/hearth/cmd"
	"github.com/marcus/hearth/internal/version"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd.SetVersion(version.Resolve(Version))
	cmd.Execute()
}
