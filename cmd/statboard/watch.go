package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// watchCmd shows the dashboard in the terminal.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the dashboard in the terminal",
	Long: `Poll the configured sources and show them in a terminal UI instead
of serving the web dashboard.

Keys:
  u  fire the manual update (if an update URL is configured)
  q  quit

The terminal is taken over by the UI, so logs are discarded unless
--log-file is given.

Example:
  statboard watch -c config.yaml --log-file statboard.log --log-level debug`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().String("log-file", "", "append logs to this file")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	var logOut io.Writer = io.Discard
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	logger, err := newLogger(cmd, logOut)
	if err != nil {
		return err
	}

	sb, _, err := loadBoard(cmd, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sb.Watch(ctx); err != nil {
		return fmt.Errorf("terminal UI error: %w", err)
	}
	return nil
}
