package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/statboard"
	"github.com/jpalmerr/statboard/example/mockstats"
)

func main() {
	// start the fake pipeline; one request in ten fails to show off notices
	backend := mockstats.New(mockstats.WithFailureRate(0.1))
	ln, err := net.Listen("tcp", "127.0.0.1:9999")
	if err != nil {
		slog.Error("failed to start mock backend", "error", err)
		os.Exit(1)
	}
	go func() {
		srv := &http.Server{Handler: backend.Handler(), ReadHeaderTimeout: 5 * time.Second}
		if err := srv.Serve(ln); err != nil {
			slog.Error("mock backend error", "error", err)
		}
	}()

	// path topology: every service behind one base URL, plus the update endpoint
	base := "http://127.0.0.1:9999"
	sources, err := statboard.PathTopology(base, statboard.WithTimeout(3*time.Second))
	if err != nil {
		slog.Error("failed to create sources", "error", err)
		os.Exit(1)
	}

	sb, err := statboard.New(
		statboard.WithSources(sources...),
		statboard.WithUpdateURL(statboard.PathUpdateURL(base)),
		statboard.WithPollingInterval(4*time.Second),
		statboard.WithPort(8080),
		statboard.WithTitle("Statboard Demo"),
		statboard.WithUpdateCallback(func(r statboard.UpdateResult) {
			if r.Error == nil {
				slog.Info("consistency check refreshed", "reply", r.Value)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create statboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Statboard Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Sources: 5 from the path topology on :9999          ║")
	fmt.Println("  ║   Press Update to run a consistency check             ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sb.Start(ctx); err != nil {
		slog.Error("statboard error", "error", err)
		os.Exit(1)
	}
}
