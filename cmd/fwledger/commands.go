package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wellsgz/fwledger/api"
	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/traffic"
	"github.com/wellsgz/fwledger/internal/types"
)

func newSendCmd() *cobra.Command {
	var spec types.PacketSpec

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit one packet and print the decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Malicious = spec.AttackType != ""
			if _, err := spec.Build(); err != nil {
				return err
			}

			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.ProcessPackets([]types.PacketSpec{spec}, false)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(res)
			}
			printResults(res.Results, true)
			return nil
		},
	}

	cmd.Flags().StringVar(&spec.SrcAddr, "src", "", "Source IPv4 address (required)")
	cmd.Flags().StringVar(&spec.DstAddr, "dst", "", "Destination IPv4 address (required)")
	cmd.Flags().IntVar(&spec.SrcPort, "sport", 40000, "Source port")
	cmd.Flags().IntVar(&spec.DstPort, "dport", 80, "Destination port")
	cmd.Flags().StringVar(&spec.Protocol, "proto", "TCP", "Protocol name")
	cmd.Flags().StringVar(&spec.Payload, "payload", "", "Payload text")
	cmd.Flags().StringVar(&spec.AttackType, "attack", "", "Tag the packet as a known attack of this type")
	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("dst")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		count    int
		batch    int
		seed     uint64
		opts     traffic.Options
		showEach bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic traffic and submit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			if batch < 1 {
				batch = 1
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.Seed = seed
			if seed == 0 {
				opts.Seed = uint64(time.Now().UnixNano())
			}
			opts.Ports = cfg.MonitoredPorts
			opts.Words = cfg.SuspiciousWords
			opts.Blacklist = cfg.BlacklistedIPs
			gen := traffic.New(opts)

			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			counts := make(map[string]int)
			failed := 0
			for sent := 0; sent < count; {
				n := min(batch, count-sent)
				res, err := c.ProcessPackets(gen.Batch(n), batch > 1)
				if err != nil {
					return fmt.Errorf("after %d packets: %w", sent, err)
				}
				for _, r := range res.Results {
					if r.Decision == nil {
						failed++
						continue
					}
					counts[r.Decision.Action.String()]++
				}
				if showEach {
					printResults(res.Results, false)
				}
				sent += n
			}

			if outputJSON {
				return printJSON(map[string]any{"sent": count, "failed": failed, "actions": counts})
			}
			fmt.Printf("Submitted %d packets (seed %d)\n", count, opts.Seed)
			for _, a := range types.AllActions {
				fmt.Printf("  %s %-6s %d\n", a.Symbol(), a, counts[a.String()])
			}
			if failed > 0 {
				fmt.Printf("  rejected: %d\n", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 100, "Number of packets")
	cmd.Flags().IntVar(&batch, "batch", 1, "Packets per block")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	cmd.Flags().Float64Var(&opts.SuspiciousRate, "suspicious-rate", 0.2, "Share of payloads with suspicious words")
	cmd.Flags().Float64Var(&opts.MaliciousRate, "malicious-rate", 0.05, "Share of packets tagged as attacks")
	cmd.Flags().Float64Var(&opts.BlacklistRate, "blacklist-rate", 0.02, "Share of packets from blacklisted sources")
	cmd.Flags().Float64Var(&opts.OversizeRate, "oversize-rate", 0.02, "Share of packets above 1500 bytes")
	cmd.Flags().BoolVarP(&showEach, "verbose", "v", false, "Print every decision")
	return cmd
}

func printResults(results []api.ProcessedPacket, detailed bool) {
	for _, r := range results {
		if r.Decision == nil {
			fmt.Printf("  ! rejected: %s\n", r.Error)
			continue
		}
		d := r.Decision
		fmt.Printf("  %s %-6s score=%-3d risk=%-8s block=#%d %s\n",
			d.Action.Symbol(), d.Action, d.TotalScore, r.RiskLevel, r.BlockIndex, d.Packet)
		if !detailed {
			continue
		}
		fmt.Printf("    reason: %s\n", d.Reason)
		for _, s := range d.Signals {
			fmt.Printf("    signal: %-9s +%d %s (%s)\n", s.Kind, s.Score, s.Description, s.ThreatLevel())
		}
		fmt.Printf("    hash:   %s\n", r.BlockHash)
	}
}

func newStatsCmd() *cobra.Command {
	var recent, top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show decision statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.GetStats(recent)
			if err != nil {
				return err
			}
			tops, err := c.GetTop(top)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(map[string]any{"stats": st, "top": tops})
			}

			s := st.Stats
			fmt.Printf("Decision Statistics (since %s)\n", s.Since.Format(time.RFC3339))
			fmt.Printf("════════════════════════════════════════\n")
			fmt.Printf("  Total:     %d\n", s.Total)
			fmt.Printf("  Accepted:  %-8d %6.2f%%\n", s.Accepted, s.AcceptRate)
			fmt.Printf("  Logged:    %-8d %6.2f%%\n", s.Logged, s.LogRate)
			fmt.Printf("  Alerted:   %-8d %6.2f%%\n", s.Alerted, s.AlertRate)
			fmt.Printf("  Dropped:   %-8d %6.2f%%\n", s.Dropped, s.DropRate)
			fmt.Printf("  History:   %d retained\n", s.HistoryLen)

			if len(tops.Sources) > 0 {
				fmt.Printf("\nTop Sources:\n")
				fmt.Printf("  %-15s  %8s  %8s  %8s  %8s\n", "Source", "Packets", "Accepted", "Blocked", "Score")
				for _, r := range tops.Sources {
					fmt.Printf("  %-15s  %8d  %8d  %8d  %8d\n", r.Key, r.Packets, r.Accepted, r.Blocked, r.TotalScore)
				}
			}
			if len(tops.Protocols) > 0 {
				fmt.Printf("\nProtocols:\n")
				for _, r := range tops.Protocols {
					fmt.Printf("  %-6s  %8d packets  %8d blocked\n", r.Key, r.Packets, r.Blocked)
				}
			}
			if len(st.Recent) > 0 {
				fmt.Printf("\nRecent Decisions:\n")
				for _, d := range st.Recent {
					fmt.Printf("  %s  %s %-6s %3d  %s\n",
						d.CreatedAt.Format("15:04:05"), d.Action.Symbol(), d.Action, d.TotalScore, d.Packet)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent decisions")
	cmd.Flags().IntVar(&top, "top", 5, "Number of top sources and protocols")
	return cmd
}

func newChainCmd() *cobra.Command {
	var (
		since     int
		limit     int
		decisions bool
	)

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "List ledger blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			chain, err := c.GetChain(since, limit, decisions)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(chain)
			}

			fmt.Printf("Ledger: %d blocks, links %s\n", chain.Total, map[bool]string{true: "valid", false: "BROKEN"}[chain.Valid])
			fmt.Printf("════════════════════════════════════════\n")
			for _, b := range chain.Blocks {
				fmt.Printf("#%-6d %s  %s\n", b.Index, b.Timestamp.Format(time.RFC3339), b.Hash)
				fmt.Printf("        prev %s\n", b.PrevHash)
				if !b.IsGenesis() {
					fmt.Printf("        %s %s:%d -> %s:%d %s size=%d decisions=%d\n",
						b.Summary.Action, b.Summary.SrcAddr, b.Summary.SrcPort,
						b.Summary.DstAddr, b.Summary.DstPort, b.Summary.Protocol,
						b.Summary.Size, b.Summary.Decisions)
				}
				for _, d := range b.Decisions {
					fmt.Printf("          %s %-6s %3d  %s  %s\n", d.Action.Symbol(), d.Action, d.TotalScore, d.Packet, d.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&since, "since", 0, "First block index")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many of the newest blocks (0 for all)")
	cmd.Flags().BoolVarP(&decisions, "decisions", "d", false, "Include decisions")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute and check every block hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.VerifyChain()
			if err != nil {
				return err
			}
			if outputJSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				r := res.Report
				fmt.Printf("Blocks checked: %d\n", r.Total)
				fmt.Printf("Tail:           #%d %s\n", r.LastIndex, r.LastHash)
				if len(r.BrokenLinks) > 0 {
					fmt.Printf("Broken links:   %v\n", r.BrokenLinks)
				}
				if len(r.HashMismatches) > 0 {
					fmt.Printf("Hash mismatch:  %v\n", r.HashMismatches)
				}
			}

			if !res.Report.OK {
				return fmt.Errorf("chain integrity check failed at blocks %v", res.Indices)
			}
			if !outputJSON {
				fmt.Println("Chain OK")
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		rangePreset string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored decisions for a date range",
		Long: `history queries decisions persisted by the daemon.
Ranges: today, yesterday, month, last-month or <n>d (e.g. 7d).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			hist, err := c.GetHistory(rangePreset, limit)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(hist)
			}

			fmt.Printf("History %s to %s\n", hist.StartDate, hist.EndDate)
			fmt.Printf("════════════════════════════════════════\n")
			for _, ac := range hist.Counts {
				fmt.Printf("  %-6s %d\n", ac.Action, ac.Count)
			}
			if len(hist.Decisions) > 0 {
				fmt.Printf("\nNewest %d:\n", len(hist.Decisions))
				for _, d := range hist.Decisions {
					fmt.Printf("  %s  %s %-6s %3d  %s\n",
						d.CreatedAt.Format("2006-01-02 15:04:05"), d.Action.Symbol(), d.Action, d.TotalScore, d.Packet)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rangePreset, "range", "r", "today", "Date range preset")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of decisions to list (0 for all)")
	return cmd
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Destroy the chain history and start a new genesis block",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Print("This permanently deletes every block. Type 'yes' to continue: ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					return errors.New("aborted")
				}
			}

			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.ClearChain()
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(res)
			}
			fmt.Printf("Chain cleared, new genesis %s\n", res.Genesis.Hash)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func newResetStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stats",
		Short: "Zero counters, history and rollups (the chain is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.ResetStats(); err != nil {
				return err
			}
			fmt.Println("Statistics reset")
			return nil
		},
	}
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Write pending blocks to disk now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Flush()
			if err != nil {
				return err
			}
			fmt.Printf("%d blocks written\n", n)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Defaults().Save(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
			if outputJSON {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
