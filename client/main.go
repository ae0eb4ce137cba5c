package main

import (
	"os"

	"github.com/driftdeskio/driftdesk/client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
