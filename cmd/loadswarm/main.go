package main

import (
	"fmt"
	"os"

	"loadswarm/internal/cmd"
)

// Exit codes
const (
	ExitSuccess = 0
	// ExitFailure covers invalid arguments, a missed threshold and
	// unexpected errors alike.
	ExitFailure = 1
)

func main() {
	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	os.Exit(ExitSuccess)
}
