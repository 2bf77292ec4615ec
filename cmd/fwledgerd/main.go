// fwledgerd is the firewall decision ledger daemon.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/daemon"
)

var (
	configPath      string
	dataDir         string
	socketPath      string
	logLevel        string
	metricsListen   string
	blockThreshold  int
	alertThreshold  int
	persistInterval time.Duration
	verifyInterval  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fwledgerd",
		Short: "Firewall decision ledger daemon",
		Long: `fwledgerd evaluates submitted packets against size, keyword and
heuristic detectors, records every decision in a hash-chained ledger,
persists the chain to SQLite and exposes an IPC interface for clients.`,
		RunE: runDaemon,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Config file (missing file means defaults)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.fwledger)")
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (default: <data-dir>/fwledger.sock)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Address for /metrics, e.g. :9110 (disabled when empty)")
	rootCmd.Flags().IntVar(&blockThreshold, "block-threshold", 0, "Score at which packets are dropped")
	rootCmd.Flags().IntVar(&alertThreshold, "alert-threshold", 0, "Score at which packets are logged or alerted")
	rootCmd.Flags().DurationVar(&persistInterval, "persist-interval", 0, "How often new blocks are written to disk")
	rootCmd.Flags().DurationVar(&verifyInterval, "verify-interval", 0, "How often the full chain is re-verified (0 disables)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Defaults()
	case err != nil:
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags override file values
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("socket") {
		cfg.Socket = socketPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("metrics-listen") {
		cfg.MetricsListen = metricsListen
	}
	if flags.Changed("block-threshold") {
		cfg.BlockThreshold = blockThreshold
	}
	if flags.Changed("alert-threshold") {
		cfg.AlertThreshold = alertThreshold
	}
	if flags.Changed("persist-interval") {
		cfg.PersistInterval = persistInterval
	}
	if flags.Changed("verify-interval") {
		cfg.VerifyInterval = verifyInterval
	}

	// Configure logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	d := daemon.New(cfg)
	return d.Run()
}
