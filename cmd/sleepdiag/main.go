// Package main provides the sleepdiag service and CLI.
//
// Usage:
//
//	sleepdiag [--config path] <command> [args]
//
// Commands:
//
//	serve   - Run the HTTP analysis service
//	analyze - Analyse one recording and print the result as JSON
package main

import (
	"fmt"
	"os"

	"github.com/akarsh-2005/sleepdiagnosis/cmd/sleepdiag/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
