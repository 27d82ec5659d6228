// Package main is the entrypoint for the PROPS print station agent CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/realworldtech/props-print-service/internal/agent"
	"github.com/realworldtech/props-print-service/internal/config"
	"github.com/realworldtech/props-print-service/internal/health"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "props-print-agent",
		Short: "PROPS print station agent",
		Long: `The PROPS print station agent connects a label printer to a PROPS
server. The server pushes print jobs over a WebSocket; the agent renders
ZPL and sends it to the printer.

Run 'props-print-agent pair' to connect to a server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newPairCmd(),
		newRunCmd(),
		newStatusCmd(),
		newJournalCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PROPS Print Agent %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newPairCmd() *cobra.Command {
	var serverURL string
	var name string

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair this station with a PROPS server",
		Long: `Pair this station with a PROPS server.

The pairing request must be approved by an operator in the server's
admin interface. This command blocks until the request is approved or
denied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPair(serverURL, name)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "PROPS server URL (required)")
	cmd.Flags().StringVar(&name, "name", "", "Station name shown to operators (default: hostname)")
	_ = cmd.MarkFlagRequired("server")

	return cmd
}

func runPair(serverURL, name string) error {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server URL must use http, https, ws or wss scheme")
	}

	if name == "" {
		hostname, herr := os.Hostname()
		if herr != nil {
			return fmt.Errorf("no --name given and hostname unavailable: %w", herr)
		}
		name = hostname
	}

	cfg, err := config.LoadAgentConfigDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Token != "" {
		fmt.Println("This station is already paired; pairing again replaces its identity.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newCLILogger(cfg.LogLevel)

	fmt.Printf("Requesting pairing with %s as %q...\n", serverURL, name)
	fmt.Println("Waiting for an operator to approve this station (Ctrl+C to cancel)...")

	result, err := agent.Pair(ctx, agent.PairOptions{
		ServerURL:       serverURL,
		Name:            name,
		ProtocolVersion: cfg.EffectiveProtocolVersion(),
		Proxy:           cfg.GetProxyConfig(),
	}, logger)
	if err != nil {
		return err
	}

	cfg.ServerURL = strings.TrimSuffix(serverURL, "/")
	cfg.Name = name
	cfg.Token = result.Token
	cfg.ClientID = result.ClientID
	cfg.ServerName = result.ServerName

	if err := cfg.SaveDefault(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	configPath, _ := config.DefaultConfigPath()
	fmt.Println()
	fmt.Printf("Pairing approved by %s\n", result.ServerName)
	fmt.Printf("Configuration saved to %s\n", configPath)
	if len(cfg.Printers) == 0 {
		fmt.Println("No printers configured yet. Add one with 'props-print-agent config add-printer'.")
	}
	fmt.Println("Run 'props-print-agent run' to start printing.")

	return nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the print station",
		Long: `Run the print station daemon.

The daemon authenticates with the server, declares its printers, and
prints label jobs as the server pushes them. It reconnects automatically
when the connection drops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAgentConfigDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("station not configured: %w", err)
			}
			return runStation(cfg)
		},
	}
}

func runStation(cfg *config.AgentConfig) error {
	logger := newCLILogger(cfg.LogLevel)

	configPath, err := config.DefaultConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	journalDir, err := cfg.ResolveJournalDir()
	if err != nil {
		return fmt.Errorf("resolve journal directory: %w", err)
	}
	journal, err := agent.OpenJournal(journalDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	runner, err := agent.NewRunner(cfg, configPath, journal, logger)
	if err != nil {
		return err
	}

	fmt.Printf("PROPS Print Agent %s starting...\n", Version)
	fmt.Printf("Server:   %s\n", cfg.ServerURL)
	fmt.Printf("Station:  %s\n", cfg.Name)
	fmt.Printf("Printers: %d\n", len(cfg.Printers))
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runner.Run(ctx)
	switch {
	case errors.Is(err, agent.ErrAuthRejected):
		fmt.Println()
		fmt.Println("The server rejected this station's token. Tokens rotate on every")
		fmt.Println("connection, so a rejected token usually means another station took")
		fmt.Println("over this identity or the client was revoked.")
		fmt.Println("Run 'props-print-agent pair' to pair again.")
		return err
	case errors.Is(err, context.Canceled):
		fmt.Println("\nShutting down.")
		return nil
	default:
		return err
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show station status, journal stats, and printer reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := config.LoadAgentConfigDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.IsConfigured() {
		fmt.Println("Status: Not paired")
		fmt.Println("Run 'props-print-agent pair' to connect to a server.")
		return nil
	}

	fmt.Printf("Server:   %s", cfg.ServerURL)
	if cfg.ServerName != "" {
		fmt.Printf(" (%s)", cfg.ServerName)
	}
	fmt.Println()
	fmt.Printf("Station:  %s\n", cfg.Name)
	if cfg.ClientID != "" {
		fmt.Printf("Client:   %s\n", cfg.ClientID)
	}
	fmt.Printf("Token:    %s\n", maskToken(cfg.Token))
	fmt.Printf("Protocol: version %s\n", cfg.EffectiveProtocolVersion())
	fmt.Printf("Proxy:    %s\n", agent.ProxyInfo(cfg.GetProxyConfig()))
	fmt.Println()

	// Server reachability.
	fmt.Print("Checking server connection... ")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(cfg.ServerURL, "/") + "/health")
	if err != nil {
		fmt.Println("FAILED")
		fmt.Printf("  %v\n", err)
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			fmt.Println("OK")
		} else {
			fmt.Printf("FAILED (HTTP %d)\n", resp.StatusCode)
		}
	}
	fmt.Println()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	// Journal stats and last contact.
	journalDir, err := cfg.ResolveJournalDir()
	if err != nil {
		return fmt.Errorf("resolve journal directory: %w", err)
	}
	journal, err := agent.OpenJournal(journalDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stats, err := journal.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	lastContact, err := journal.LastContact(ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	fmt.Println("Job journal:")
	fmt.Printf("  Total:   %d\n", stats.TotalJobs)
	fmt.Printf("  Printed: %d\n", stats.PrintedCount)
	fmt.Printf("  Failed:  %d\n", stats.FailedCount)
	if stats.LastPrintedAt != nil {
		fmt.Printf("  Last printed: %s\n", stats.LastPrintedAt.Local().Format(time.RFC822))
	}
	if lastContact != nil {
		fmt.Printf("  Last server contact: %s\n", lastContact.Local().Format(time.RFC822))
	} else {
		fmt.Println("  Last server contact: never")
	}
	fmt.Println()

	// Host metrics and printer probes.
	targets := make([]health.PrinterTarget, 0, len(cfg.Printers))
	for _, p := range cfg.Printers {
		targets = append(targets, health.PrinterTarget{ID: p.ID, Address: p.DialAddress()})
	}

	collector := health.NewCollector(journalDir, targets)
	metrics, err := collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect host metrics: %w", err)
	}

	fmt.Println("Host:")
	fmt.Printf("  CPU:    %.1f%%\n", metrics.CPUUsage)
	fmt.Printf("  Memory: %.1f%%\n", metrics.MemoryUsage)
	fmt.Printf("  Disk:   %.1f%% used (%.1f GB free)\n",
		metrics.DiskUsage, float64(metrics.DiskFreeBytes)/(1024*1024*1024))
	fmt.Println()

	if len(metrics.Printers) > 0 {
		fmt.Println("Printers:")
		for _, probe := range metrics.Printers {
			if probe.Reachable {
				fmt.Printf("  %-20s %-22s reachable (%dms)\n", probe.ID, probe.Address, probe.LatencyMS)
			} else {
				fmt.Printf("  %-20s %-22s UNREACHABLE: %s\n", probe.ID, probe.Address, probe.Error)
			}
		}
		fmt.Println()
	}

	checker := health.NewCheckerWithDefaults()
	result := checker.EvaluateWithLastContact(metrics, lastContact)
	fmt.Printf("Health: %s (%s)\n", result.Status, result.Message)
	for _, issue := range result.Issues {
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Component, issue.Message)
	}

	return nil
}

func newJournalCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recently handled print jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of jobs to show")

	return cmd
}

func runJournal(limit int) error {
	cfg, err := config.LoadAgentConfigDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	journalDir, err := cfg.ResolveJournalDir()
	if err != nil {
		return fmt.Errorf("resolve journal directory: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	journal, err := agent.OpenJournal(journalDir, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entries, err := journal.RecentJobs(ctx, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No jobs in the journal.")
		return nil
	}

	fmt.Printf("%-36s %-14s %-10s %-9s %-20s %s\n", "JOB", "PRINTER", "TYPE", "STATUS", "RECEIVED", "ERROR")
	fmt.Println(strings.Repeat("-", 110))
	for _, e := range entries {
		fmt.Printf("%-36s %-14s %-10s %-9s %-20s %s\n",
			e.JobID, e.PrinterID, e.LabelType, e.Status,
			e.ReceivedAt.Local().Format("2006-01-02 15:04:05"), e.Error)
	}

	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage station configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetServerCmd(),
		newConfigSetProtocolVersionCmd(),
		newConfigAddPrinterCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAgentConfigDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			configPath, _ := config.DefaultConfigPath()
			fmt.Printf("Config file: %s\n", configPath)
			fmt.Println()

			if !cfg.IsConfigured() {
				fmt.Println("Station is not paired. Run 'props-print-agent pair' to set up.")
				return nil
			}

			fmt.Printf("Server URL:       %s\n", cfg.ServerURL)
			if cfg.ServerName != "" {
				fmt.Printf("Server name:      %s\n", cfg.ServerName)
			}
			fmt.Printf("Station name:     %s\n", cfg.Name)
			if cfg.ClientID != "" {
				fmt.Printf("Client ID:        %s\n", cfg.ClientID)
			}
			fmt.Printf("Token:            %s\n", maskToken(cfg.Token))
			fmt.Printf("Protocol version: %s\n", cfg.EffectiveProtocolVersion())
			fmt.Printf("Proxy:            %s\n", agent.ProxyInfo(cfg.GetProxyConfig()))
			if cfg.JournalDir != "" {
				fmt.Printf("Journal dir:      %s\n", cfg.JournalDir)
			}

			fmt.Println()
			if len(cfg.Printers) == 0 {
				fmt.Println("No printers configured.")
				return nil
			}
			fmt.Println("Printers:")
			for _, p := range cfg.Printers {
				fmt.Printf("  %-20s %-22s type=%s", p.ID, p.DialAddress(), p.Type)
				if len(p.Templates) > 0 {
					fmt.Printf(" templates=%s", strings.Join(p.Templates, ","))
				}
				fmt.Println()
			}

			return nil
		},
	}
}

func newConfigSetServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-server <url>",
		Short: "Set the server URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL := args[0]

			parsed, err := url.Parse(serverURL)
			if err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}
			switch parsed.Scheme {
			case "http", "https", "ws", "wss":
			default:
				return fmt.Errorf("server URL must use http, https, ws or wss scheme")
			}

			cfg, err := config.LoadAgentConfigDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg.ServerURL = strings.TrimSuffix(serverURL, "/")

			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Server URL set to: %s\n", cfg.ServerURL)
			return nil
		},
	}
}

func newConfigSetProtocolVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-protocol-version <version>",
		Short: "Set the protocol version the station declares",
		Long: `Set the protocol version the station declares to the server.

Version 1 supports asset labels. Version 2 adds location labels. The
server must be configured to accept the declared version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := args[0]
			if version != "1" && version != "2" {
				return fmt.Errorf("unsupported protocol version %q: use 1 or 2", version)
			}

			cfg, err := config.LoadAgentConfigDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg.ProtocolVersion = version

			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Protocol version set to: %s\n", version)
			return nil
		},
	}
}

func newConfigAddPrinterCmd() *cobra.Command {
	var id, name, address, printerType string
	var templates []string

	cmd := &cobra.Command{
		Use:   "add-printer",
		Short: "Add a printer to the station",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAgentConfigDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			for _, p := range cfg.Printers {
				if p.ID == id {
					return fmt.Errorf("printer %q already configured", id)
				}
			}

			if name == "" {
				name = id
			}

			cfg.Printers = append(cfg.Printers, config.PrinterConfig{
				ID:        id,
				Name:      name,
				Type:      printerType,
				Address:   address,
				Templates: templates,
			})

			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Printer %q added (%s)\n", id, address)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Printer identifier used by the server (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: id)")
	cmd.Flags().StringVar(&address, "address", "", "Printer host or host:port (required)")
	cmd.Flags().StringVar(&printerType, "type", "zpl", "Printer type")
	cmd.Flags().StringSliceVar(&templates, "templates", nil, "Label templates this printer stocks")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

// newCLILogger builds the agent logger honoring the configured level.
func newCLILogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(parsed)
	}
	return logger
}

// maskToken returns a masked version of the token for display.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
