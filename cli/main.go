package main

import (
	"os"

	"github.com/Mirascope/spancache/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
