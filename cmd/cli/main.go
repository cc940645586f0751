package main

import (
	"os"

	"github.com/nuulab/jobq/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
