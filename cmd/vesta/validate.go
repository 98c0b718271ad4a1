package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"meridian-hq/vesta/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply environment overrides, and check it
against the same rules the run command enforces at startup.

Examples:
  # Validate the default config
  vesta validate

  # Validate a specific file
  vesta validate --config /etc/vesta/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		fmt.Println("✓ Configuration valid")
		if verbose {
			fmt.Printf("  worker:        %s\n", cfg.Cluster.Worker)
			fmt.Printf("  base port:     %d\n", cfg.Cluster.BasePort)
			fmt.Printf("  proxy enabled: %t\n", cfg.Cluster.ProxyEnabled)
			fmt.Printf("  groups:        %v\n", cfg.Cluster.Groups)
			fmt.Printf("  log level:     %s\n", cfg.Telemetry.Logging.Level)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
