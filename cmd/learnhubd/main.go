// Command learnhubd serves the learnhub HTTP API, a gRPC health endpoint
// and, optionally, MCP tools on stdio.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
