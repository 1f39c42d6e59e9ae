// Package main implements the entry point for scanbridge, a WebSocket bridge
// between browser clients and locally attached document scanners. It exposes
// a JSON command protocol for device discovery and scanning, supervising one
// scanimage subprocess per connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/scanbridge/config"
	"github.com/c360/scanbridge/discovery"
	"github.com/c360/scanbridge/gateway"
	"github.com/c360/scanbridge/metric"
	"github.com/c360/scanbridge/scanjob"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "scanbridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	gw, metricsServer, jobs, cleaner, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(gw, metricsServer, jobs, cleaner, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting scanbridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// buildComponents wires the job controller, discovery, gateway, and metrics
// server together from the loaded configuration.
func buildComponents(
	cfg *config.Config,
	logger *slog.Logger,
) (*gateway.Gateway, *metric.Server, *scanjob.Controller, *scanjob.Cleaner, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	cleaner := scanjob.NewCleaner(cfg.CleanupDelay.Std(), logger)

	jobs := scanjob.NewController(scanjob.Options{
		OutputDir:     cfg.OutputDir,
		ScanimagePath: cfg.ScanimagePath,
		JobTimeout:    cfg.JobTimeout.Std(),
		SimStepDelay:  cfg.SimStepDelay.Std(),
	}, cleaner, metricsRegistry, logger)

	// The synthetic test device is only offered outside production.
	devices := discovery.NewDiscoverer(cfg.ScanimagePath, !cfg.Production(), logger)

	gw, err := gateway.NewGateway("gateway", gateway.Config{
		Port:           cfg.Port,
		Path:           cfg.Path,
		AllowedOrigins: cfg.AllowedOrigins,
	}, jobs, devices, metricsRegistry, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create gateway: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.MetricsPort > 0 {
		metricsServer = metric.NewServer(cfg.MetricsPort, metricsRegistry, gw)
	}

	return gw, metricsServer, jobs, cleaner, nil
}

// runWithSignalHandling starts the components and blocks until a shutdown
// signal arrives, then stops them in reverse dependency order.
func runWithSignalHandling(
	gw *gateway.Gateway,
	metricsServer *metric.Server,
	jobs *scanjob.Controller,
	cleaner *scanjob.Cleaner,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if metricsServer != nil {
		if err := metricsServer.Start(signalCtx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if err := gw.Start(signalCtx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	slog.Info("scanbridge started", "addr", gw.Addr())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(gw, metricsServer, jobs, cleaner, shutdownTimeout)
}

// shutdown stops accepting connections first, then terminates any scan
// subprocesses still running, flushes pending file cleanups, and finally
// stops the metrics server.
func shutdown(
	gw *gateway.Gateway,
	metricsServer *metric.Server,
	jobs *scanjob.Controller,
	cleaner *scanjob.Cleaner,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)

	if err := gw.Stop(timeout); err != nil {
		slog.Error("Error stopping gateway", "error", err)
	}

	if remaining := time.Until(deadline); remaining > 0 {
		if err := jobs.CancelAll(remaining); err != nil {
			slog.Error("Error cancelling active jobs", "error", err)
		}
	}

	cleaner.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(5 * time.Second); err != nil {
			slog.Error("Error stopping metrics server", "error", err)
		}
	}

	slog.Info("scanbridge shutdown complete")
	return nil
}
