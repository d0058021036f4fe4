// Standalone mock backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver --addr :9999 --failure-rate 0.1
//
// Then in another terminal:
//
//	go run ./cmd/statboard serve -c example/config.yaml
//	go run ./cmd/statboard watch -c example/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statboard/example/mockstats"
)

var rootCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "Serve a fake stream processing backend",
	Long: `Mockserver serves every endpoint of the path topology from memory.

Each stats request admits a few new chat and donation events, and the
configured share of requests fails with a 503 HTML page.

Example:
  mockserver --addr :9999 --failure-rate 0.25`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runMockserver,
}

func init() {
	rootCmd.Flags().String("addr", ":9999", "listen address")
	rootCmd.Flags().Float64("failure-rate", 0.1, "share of requests answered with a 503, between 0 and 1")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMockserver(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	failureRate, _ := cmd.Flags().GetFloat64("failure-rate")
	if failureRate < 0 || failureRate > 1 {
		return fmt.Errorf("invalid --failure-rate %v: must be between 0 and 1", failureRate)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mock stats backend starting on %s\n", addr)
	fmt.Fprintf(out, "Failing %.0f%% of stats requests\n", failureRate*100)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	fmt.Fprintln(out)

	backend := mockstats.New(mockstats.WithFailureRate(failureRate))
	if err := backend.ListenAndServe(addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
