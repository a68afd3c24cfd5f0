// Command scanctl drives the scan orchestrator API from the terminal.
package main

import (
	"os"
)

// Version information (will be set during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
