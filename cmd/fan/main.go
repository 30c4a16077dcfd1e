// fan is the command-line interface for the federated authentication
// network engine.
//
// The CLI runs the engine itself and provides the supporting utilities a
// deployment needs around it:
//   - Serving agent documents and authenticating visitors (serve)
//   - Resolving addresses and DIDs against live agents (resolve)
//   - Generating signing keys and identity documents (keygen, document)
//   - Validating configuration and probing a running engine (validate, health)
//
// Usage:
//   fan serve --config fan.yaml
//   fan resolve alice@example.org
//   fan --help
package main

import (
	"fmt"
	"os"

	"github.com/sufield/fan/internal/cli"
)

// main is the entry point for the fan CLI tool.
// It executes the root command and handles any errors that occur.
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
