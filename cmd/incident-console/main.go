// Command incident-console serves the incident console API in front of an
// incident service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bissquit/incident-console/internal/app"
	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		slog.Error("incident console failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	shutdownTimeout := pflag.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("incident-console %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildDate)
		return nil
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", *envFile, err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	return application.Shutdown(shutdownCtx)
}
