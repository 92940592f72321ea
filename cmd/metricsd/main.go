// Package main implements the metricsd CLI for validating metric
// expressions, searching metric metadata and managing namespace
// membership.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/logging"
	"github.com/fyrsmithlabs/metricsd/internal/service"
	"github.com/fyrsmithlabs/metricsd/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configPath overrides ~/.config/metricsd/config.yaml
	configPath string
	// metricsTextfile receives the collected metrics after each command
	metricsTextfile string
	// version information
	version = "dev"
)

// openService builds the service for a command; tests replace it.
var openService = func(ctx context.Context, path string) (*service.Service, func(), error) {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, nil, err
	}

	logCfg, err := logging.ConfigFrom(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracing, err := telemetry.NewTracing(ctx, cfg.Tracing, telemetry.WithServiceVersion(version))
	if err != nil {
		_ = logging.Sync(logger)
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		_ = tracing.Shutdown(context.Background())
		_ = logging.Sync(logger)
		return nil, nil, err
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close service", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
		_ = logging.Sync(logger)
	}
	return svc, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "metricsd",
	Short: "Validate metric expressions and search metric metadata",
	Long: `metricsd checks that metric expressions only reference metrics registered
for a namespace, and searches a catalog of metric metadata with
natural-language queries.

Configuration is read from ~/.config/metricsd/config.yaml (or --config)
and METRICSD_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/metricsd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit (node_exporter textfile format)")
}

// withService opens the service, runs fn and releases the service.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, cleanup, err := openService(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	err = fn(ctx, svc)
	if metricsTextfile != "" {
		if werr := prometheus.WriteToTextfile(metricsTextfile, prometheus.DefaultGatherer); werr != nil {
			return errors.Join(err, fmt.Errorf("writing metrics textfile: %w", werr))
		}
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
