// Package main provides the entry point for the voxrecon CLI.
package main

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/voxrecon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
