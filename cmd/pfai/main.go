// Command pfai is the entry point for the PF-AI portfolio assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the assistant over a REST/SSE API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pfai-go/cmd/pfai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
