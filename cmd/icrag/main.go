// Command icrag is the entry point for the Indian Constitution question
// answering service. It ingests the per-language constitution documents,
// answers questions from the CLI, and serves the HTTP and MCP APIs.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/icrag-go/cmd/icrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
