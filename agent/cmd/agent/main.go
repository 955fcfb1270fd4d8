package main

import (
	"os"

	"github.com/seaward-systems/fleetgate/agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
