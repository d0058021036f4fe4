package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statboard/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Statboard configuration file without starting the server.

This command parses the YAML, expands environment variables, validates
all fields and builds the source list. It's useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  statboard validate -c config.yaml
  statboard validate --config /etc/statboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources, updateURL, err := config.BuildSources(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	topology := cfg.Topology
	if topology == "" {
		topology = "none"
	}
	if updateURL == "" {
		updateURL = "none"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Notice TTL:    %s\n", cfg.NoticeTTL.Duration())
	fmt.Fprintf(out, "  Topology:      %s\n", topology)
	fmt.Fprintf(out, "  Update URL:    %s\n", updateURL)
	fmt.Fprintf(out, "  Sources:       %d\n", len(sources))
	for _, src := range sources {
		fmt.Fprintf(out, "    %-18s %s\n", src.Slot(), src.URL())
	}

	return nil
}
