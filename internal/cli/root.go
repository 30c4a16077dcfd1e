// Package cli provides the command-line interface for the fan engine.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fan",
	Short: "Federated authentication network engine",
	Long: `Federated authentication network engine.

fan serves a deployment's signed identity documents, resolves and verifies
remote identities, and authenticates subjects through encrypted
challenge/response. Use this CLI to run the engine, prepare documents and
keys, and inspect remote identities.`,
}

func Execute() error {
	return rootCmd.Execute()
}
