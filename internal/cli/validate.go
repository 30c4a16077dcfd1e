package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sufield/fan/internal/config"
	coreerrors "github.com/sufield/fan/internal/core/errors"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply environment overrides, and validate the
result without starting the engine.

Examples:
  fan validate --config fan.yaml
  fan validate --config fan.yaml --quiet`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringP("config", "c", "", "Path to configuration file")
	validateCmd.Flags().BoolP("quiet", "q", false, "Suppress output, report through the exit code only")
	validateCmd.MarkFlagFilename("config", "yaml", "yml")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := config.Load(configFile)
	if err != nil {
		if !quiet {
			printValidationFailure(err)
		}
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if quiet {
		return nil
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.Address)
	fmt.Printf("  Agent role: %s\n", enabledWord(cfg.Agent.Enabled))
	fmt.Printf("  Website role: %s\n", enabledWord(cfg.Website.Enabled))
	if cfg.Website.Enabled {
		fmt.Printf("  Sessions: %s\n", enabledWord(cfg.Website.Session.Enabled))
		fmt.Printf("  Sovereign identities: %s\n", enabledWord(cfg.Resolver.AllowSovereign))
	}
	if !cfg.HasRole() {
		fmt.Println("  Warning: no role is enabled, 'fan serve' will refuse this configuration")
	}
	return nil
}

func printValidationFailure(err error) {
	var cfgErr *coreerrors.ConfigValidationError
	if errors.As(err, &cfgErr) {
		fmt.Printf("Configuration is invalid (%d problems):\n", len(cfgErr.Errors))
		for _, e := range cfgErr.Errors {
			fmt.Printf("  - %v\n", e)
		}
		return
	}
	fmt.Printf("Configuration is invalid: %v\n", err)
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
