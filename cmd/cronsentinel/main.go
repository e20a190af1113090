// Package main provides the entry point for the cronsentinel scheduler daemon.
package main

import (
	"os"

	"github.com/cronsentinel/cronsentinel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
