// Package main is the entry point for the labwatch CLI/TUI.
package main

import (
	"os"

	"github.com/iotlab-io/labwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
