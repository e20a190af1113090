// Package main provides the entry point for the cronsentinel-secrets CLI.
package main

import (
	"fmt"
	"os"

	"github.com/cronsentinel/cronsentinel/internal/cli/secretscmd"
)

func main() {
	if err := secretscmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
