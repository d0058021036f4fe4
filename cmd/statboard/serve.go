package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statboard"
	"github.com/jpalmerr/statboard/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the Statboard dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the Statboard dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Poll every configured source once per poll interval
  - Serve the dashboard UI, live updates and metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  statboard serve -c config.yaml
  statboard serve --config /etc/statboard/config.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().IntP("port", "p", 0, "override the configured port")
	_ = serveCmd.MarkFlagRequired("config")
}

// loadBoard loads the config file named by the --config flag and builds a
// StatBoard from it.
func loadBoard(cmd *cobra.Command, logger *slog.Logger) (*statboard.StatBoard, *config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build sources: %w", err)
	}
	opts = append(opts, statboard.WithLogger(logger))

	sb, err := statboard.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Statboard: %w", err)
	}
	return sb, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}

	sb, cfg, err := loadBoard(cmd, logger)
	if err != nil {
		return err
	}

	logger.Info("config loaded",
		"topology", cfg.Topology,
		"sources", len(sb.Sources()),
	)
	logger.Info("starting server",
		"port", sb.Port(),
		"poll_interval", sb.PollingInterval().String(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- sb.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
