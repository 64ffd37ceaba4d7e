// Package main provides the tentacles CLI entry point.
package main

import (
	"os"

	"github.com/pbip-tools/tentacles/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
