// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	app "coinflip-settlement/internal"
	"coinflip-settlement/internal/config"
	"coinflip-settlement/pkg/db"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "migration error:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and initialize the application
	application := app.NewApplication()
	if err := application.Initialize(ctx); err != nil {
		if application.Logger != nil {
			application.Logger.Error("Failed to initialize application", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "failed to initialize application:", err)
		}
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	logger := application.Logger

	// Start HTTP server
	server := &http.Server{
		Addr:              ":" + application.Config.ServerPort,
		Handler:           application.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      45 * time.Second, // Settlement polls the ledger before responding
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", application.Config.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("Shutting down HTTP server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// In-flight settlements finish before the workers and connections go away.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
		exitCode = 1
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("Application shutdown failed", zap.Error(err))
		exitCode = 1
	}

	logger.Info("Application gracefully stopped.")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func handleMigrationCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: api migrate [up|down|status] [steps]")
	}

	cfg, err := config.LoadDBConfig()
	if err != nil {
		return err
	}
	conn, err := db.NewPostgresDB(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(conn); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[1], err)
			}
		}
		if err := db.MigrateDown(conn, steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
	case "status":
		st, err := db.MigrateStatus(conn)
		if err != nil {
			return err
		}
		if st.None {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d, dirty=%t\n", st.Version, st.Dirty)
	default:
		return fmt.Errorf("unknown migration command: %s", args[0])
	}
	return nil
}
