// fwledger is the CLI/TUI client for the firewall decision ledger.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wellsgz/fwledger/internal/client"
	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/tui"
)

var (
	socketPath string
	configPath string
	outputJSON bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "fwledger",
		Short:        "Firewall decision ledger client",
		Long:         `fwledger submits packets to the fwledgerd daemon and inspects its statistics and decision chain.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Unix socket path (default: from config, ~/.fwledger/fwledger.sock)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch interactive terminal dashboard",
		RunE:  runTUI,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE:  runStatus,
	}

	rootCmd.AddCommand(
		tuiCmd,
		statusCmd,
		newSendCmd(),
		newSimulateCmd(),
		newStatsCmd(),
		newChainCmd(),
		newVerifyCmd(),
		newHistoryCmd(),
		newClearCmd(),
		newResetStatsCmd(),
		newFlushCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it is missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Defaults(), nil
	}
	return cfg, err
}

func resolveSocket() string {
	if socketPath != "" {
		return socketPath
	}
	cfg, err := loadConfig()
	if err != nil {
		return ""
	}
	return cfg.ResolveSocket()
}

func getClient() (*client.Client, error) {
	c := client.New(resolveSocket())
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w\nIs fwledgerd running?", err)
	}
	return c, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTUI(cmd *cobra.Command, args []string) error {
	model := tui.New(resolveSocket())
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.GetStatus()
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(status)
	}

	fmt.Printf("Daemon Status\n")
	fmt.Printf("════════════════════════════════════════\n")
	fmt.Printf("  Running:     %v\n", status.Running)
	fmt.Printf("  Uptime:      %s\n", status.Uptime)
	fmt.Printf("  Start Time:  %s\n", status.StartTime)
	fmt.Printf("  Version:     %s\n", status.Version)
	fmt.Printf("  Data Dir:    %s\n", status.DataDir)
	fmt.Printf("  Socket:      %s\n", status.SocketPath)
	if status.MetricsListen != "" {
		fmt.Printf("  Metrics:     %s\n", status.MetricsListen)
	}
	fmt.Printf("  Thresholds:  alert %d, block %d\n", status.AlertThreshold, status.BlockThreshold)
	fmt.Printf("  Detectors:   %s\n", strings.Join(status.Detectors, ", "))
	fmt.Printf("  Ports:       %v\n", status.MonitoredPorts)
	fmt.Printf("  Blacklist:   %v\n", status.BlacklistedIPs)
	fmt.Printf("  Chain:       %d blocks, tail #%d %s\n", status.ChainBlocks, status.LastIndex, status.LastHash)
	fmt.Printf("  Persisted:   #%d (every %s)\n", status.PersistedIndex, status.PersistInterval)

	return nil
}
