// Package main provides the entry point for the stratuscode server.
package main

import (
	"fmt"
	"os"

	"github.com/stratuscode/stratuscode/cmd/stratuscode/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
