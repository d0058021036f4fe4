package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/statboard"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// updateCmd fires the manual update once.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fire the manual update once",
	Long: `Send the manual update request configured by update_url (or derived
from the path topology) and print the reply.

The request is sent once and never retried.

Exit codes:
  0 - The update endpoint answered with a JSON reply (any status)
  1 - No update endpoint is configured, or the request failed

Example:
  statboard update -c config.yaml --timeout 5s`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	updateCmd.Flags().Duration("timeout", 30*time.Second, "give up waiting for the reply after this long")
	_ = updateCmd.MarkFlagRequired("config")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}

	sb, _, err := loadBoard(cmd, logger)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := sb.TriggerUpdate(ctx)
	if errors.Is(err, statboard.ErrNoUpdateURL) {
		return errors.New("no update endpoint configured: set update_url or use the path topology")
	}
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	reply, err := json.Marshal(result.Value)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Update successful!\n")
	fmt.Fprintf(out, "  URL:     %s\n", result.URL)
	fmt.Fprintf(out, "  Status:  %d\n", result.StatusCode)
	fmt.Fprintf(out, "  Latency: %s\n", result.Latency.Round(time.Millisecond))
	fmt.Fprintf(out, "  Reply:   %s\n", reply)
	return nil
}
