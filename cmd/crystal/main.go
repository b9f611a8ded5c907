package main

import (
	"fmt"
	"os"

	"github.com/wipcomputer/memory-crystal/internal/cmd"
)

var (
	// Version is set during build via -ldflags.
	Version = "dev"
	// BuildTime is set during build via -ldflags.
	BuildTime = "unknown"
)

func main() {
	cmd.Version = Version
	cmd.BuildTime = BuildTime

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
