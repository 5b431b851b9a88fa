// Package main provides the entry point for the pingmem CLI.
package main

import (
	"os"

	"github.com/usorama/pingmem/cmd/pingmem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
