// Package main provides the entry point for the taskorchestrator CLI.
package main

import (
	"os"

	"github.com/taskorchestrator/taskorchestrator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
