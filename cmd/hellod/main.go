// Package main is the entry point for the hellod service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(newRootCmd(), os.Stderr))
}

// run executes cmd and reports a failure on stderr, since the root command
// silences cobra's own error output.
func run(cmd *cobra.Command, stderr io.Writer) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
