package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"netrecon/internal/analysis"
	"netrecon/internal/capture"
	"netrecon/internal/config"
	"netrecon/internal/decode"
	"netrecon/internal/discovery"
	"netrecon/internal/logging"
	"netrecon/internal/models"
	"netrecon/internal/oui"
	"netrecon/internal/reporting"
	"netrecon/internal/spoofer"
	"netrecon/internal/tui"
)

var (
	verbose bool

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(1, 0)
	summaryTitle = lipgloss.NewStyle().Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "netrecon",
	Short: "Metadata recon reports from packet captures",
	Long: "netrecon turns a packet capture into an analyst-facing metadata report:\n" +
		"devices, resolved domains, TLS server names, cleartext HTTP requests and\n" +
		"traffic volume over time - all without decrypting a single payload.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(reportCmd(), dashboardCmd(), runCmd(), discoverCmd())
}

func addReportFlags(cmd *cobra.Command, opts *config.ReportOptions) {
	cmd.Flags().IntVar(&opts.SampleRate, "sample-rate", 1, "process every Nth packet")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after N accepted packets (0 = no limit)")
	cmd.Flags().StringVar(&opts.TimelineResolution, "timeline-resolution", "minute", "timeline bucket width: second, minute or hour")
	cmd.Flags().IntVar(&opts.TopN, "top-n", 15, "entries per ranked list in summary.json")
	cmd.Flags().BoolVar(&opts.IPOnly, "ip-only", false, "skip the MAC device ledger")
	cmd.Flags().BoolVar(&opts.NoDNS, "no-dns", false, "skip DNS query extraction")
	cmd.Flags().BoolVar(&opts.NoTLS, "no-tls", false, "skip TLS SNI extraction")
	cmd.Flags().BoolVar(&opts.NoHTTP, "no-http", false, "skip HTTP request extraction")
}

func reportCmd() *cobra.Command {
	var (
		pcapPath string
		outdir   string
		manuf    string
		opts     config.ReportOptions
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate metadata datasets from a capture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose)
			defer log.Sync()

			bundle, err := generateReport(cmd.Context(), log, pcapPath, outdir, manuf, opts)
			if err != nil {
				return err
			}
			fmt.Print(renderSummary(bundle))
			return nil
		},
	}

	cmd.Flags().StringVarP(&pcapPath, "pcap", "r", "", "input capture file")
	cmd.Flags().StringVarP(&outdir, "outdir", "o", "", "output directory for datasets")
	cmd.Flags().StringVar(&manuf, "manuf", "", "optional Wireshark manuf file for vendor lookups")
	cmd.MarkFlagRequired("pcap")
	cmd.MarkFlagRequired("outdir")
	addReportFlags(cmd, &opts)
	return cmd
}

func dashboardCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Render a report directory into a one-file HTML dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose)
			defer log.Sync()

			if err := reporting.WriteDashboard(input, output); err != nil {
				return err
			}
			log.Infow("dashboard written", "path", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "summary.json of a generated report")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output HTML file")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		configPath string
		cfg        config.RunConfig
		durationS  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture for a fixed duration, then build report and dashboard",
		Long: "Runs the full lab chain: optional ARP spoof of a target/gateway pair,\n" +
			"live capture to a pcap for the configured duration, then the metadata\n" +
			"report and dashboard. Teardown restores the network before reporting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose)
			defer log.Sync()

			if configPath != "" {
				loaded, err := config.LoadRunConfig(configPath)
				if err != nil {
					return err
				}
				cfg = *loaded
			} else {
				cfg.Duration = time.Duration(durationS) * time.Second
				cfg.SetDefaults()
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runLab(cmd.Context(), log, &cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration (overrides other flags)")
	cmd.Flags().StringVarP(&cfg.Interface, "interface", "i", "", "network interface to capture from")
	cmd.Flags().StringVar(&cfg.Target, "target", "", "target IP for MITM (requires --gateway)")
	cmd.Flags().StringVar(&cfg.Gateway, "gateway", "", "gateway IP for MITM (requires --target)")
	cmd.Flags().IntVar(&durationS, "duration", 300, "capture time in seconds")
	cmd.Flags().StringVar(&cfg.PcapPath, "pcap", "", "capture file to write")
	cmd.Flags().StringVarP(&cfg.OutDir, "outdir", "o", "", "report output directory")
	cmd.Flags().StringVar(&cfg.Dashboard, "dashboard", "", "dashboard HTML filename")
	cmd.Flags().StringVar(&cfg.ManufFile, "manuf", "", "optional Wireshark manuf file")
	cmd.Flags().BoolVar(&cfg.OpenWhenDone, "open", false, "open the dashboard when finished")
	addReportFlags(cmd, &cfg.Report)
	return cmd
}

func discoverCmd() *cobra.Command {
	var (
		iface string
		manuf string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "ARP-sweep the interface subnet and list responding hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose)
			defer log.Sync()

			vendors, err := oui.NewResolver(manuf)
			if err != nil {
				return err
			}

			log.Infow("scanning", "interface", iface)
			hosts, err := discovery.Scan(cmd.Context(), iface, vendors, discovery.ScanConfig{})
			if err != nil {
				return err
			}

			fmt.Printf("%-16s %-18s %s\n", "IP", "MAC", "Vendor")
			for _, h := range hosts {
				fmt.Printf("%-16s %-18s %s\n", h.IP, h.MAC, h.Vendor)
			}
			log.Infow("scan complete", "hosts", len(hosts))
			return nil
		},
	}

	cmd.Flags().StringVarP(&iface, "interface", "i", "", "network interface to scan")
	cmd.Flags().StringVar(&manuf, "manuf", "", "optional Wireshark manuf file")
	cmd.MarkFlagRequired("interface")
	return cmd
}

// generateReport runs the full batch pipeline: decode, aggregate, finalize,
// persist. Nothing is written until the whole pass has succeeded.
func generateReport(ctx context.Context, log *logging.Logger, pcapPath, outdir, manuf string, opts config.ReportOptions) (*analysis.Bundle, error) {
	engineCfg := opts.ToEngine()

	var lookup analysis.VendorLookup
	if engineCfg.IncludeLinkLayer {
		vendors, err := oui.NewResolver(manuf)
		if err != nil {
			return nil, err
		}
		lookup = vendors.Vendor
	}

	agg, err := analysis.New(engineCfg, lookup)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan models.PacketRecord, 1024)
	if err := decode.StartFileCapture(ctx, pcapPath, records); err != nil {
		return nil, err
	}

	log.Infow("processing capture", "pcap", pcapPath)
	processed := agg.Consume(records)
	cancel() // release the decoder if a limit cut the pass short

	bundle := agg.Finalize()

	absPcap, err := filepath.Abs(pcapPath)
	if err != nil {
		absPcap = pcapPath
	}
	if err := reporting.WriteDatasets(bundle, absPcap, outdir); err != nil {
		return nil, err
	}
	log.Infow("report written", "outdir", outdir, "packets", processed,
		"devices", bundle.Summary.DeviceCount)
	return bundle, nil
}

// runLab drives the fixed-duration lab chain end to end.
func runLab(ctx context.Context, log *logging.Logger, cfg *config.RunConfig) error {
	// Preflight the vendor database before touching the network.
	if _, err := oui.NewResolver(cfg.ManufFile); err != nil {
		return err
	}

	var bpfFilter string
	if cfg.Target != "" {
		log.Infow("starting MITM", "target", cfg.Target, "gateway", cfg.Gateway)
		if err := spoofer.EnableIPForwarding(); err != nil {
			return err
		}
		defer func() {
			log.Info("disabling IP forwarding")
			if err := spoofer.DisableIPForwarding(); err != nil {
				log.Warnw("disable forwarding failed", "err", err)
			}
		}()

		engine, err := spoofer.NewEngine(log, cfg.Target, cfg.Gateway, cfg.Interface)
		if err != nil {
			return err
		}
		if err := engine.Start(); err != nil {
			return err
		}
		defer engine.Stop()

		// Ignore our own retransmissions to avoid double counting.
		bpfFilter = fmt.Sprintf("not ether src %s", engine.HostMAC)
		log.Infow("MITM active", "filter", bpfFilter)
	}

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	type captureResult struct {
		packets int
		err     error
	}
	done := make(chan captureResult, 1)
	go func() {
		n, err := capture.ToFile(captureCtx, cfg.Interface, bpfFilter, cfg.PcapPath)
		done <- captureResult{n, err}
	}()

	model := tui.NewCountdownModel(cfg.Interface, cfg.Target, cfg.Duration)
	program := tea.NewProgram(model)
	final, err := program.Run()
	if err != nil {
		log.Warnw("countdown ui failed, waiting out the timer", "err", err)
		select {
		case <-time.After(cfg.Duration):
		case <-ctx.Done():
		}
	} else if m, ok := final.(tui.CountdownModel); ok && m.Aborted {
		log.Info("capture aborted by operator")
	}

	stopCapture()
	result := <-done
	if result.err != nil {
		return fmt.Errorf("capture failed: %w", result.err)
	}
	log.Infow("capture finished", "pcap", cfg.PcapPath, "packets", result.packets)

	bundle, err := generateReport(ctx, log, cfg.PcapPath, cfg.OutDir, cfg.ManufFile, cfg.Report)
	if err != nil {
		return err
	}

	dashboardOut := cfg.Dashboard
	if err := reporting.WriteDashboard(
		filepath.Join(cfg.OutDir, reporting.SummaryFile), dashboardOut); err != nil {
		return err
	}
	log.Infow("dashboard written", "path", dashboardOut)

	fmt.Print(renderSummary(bundle))

	if cfg.OpenWhenDone {
		openInBrowser(dashboardOut)
	}
	return nil
}

// renderSummary is the terminal-facing digest printed after a run.
func renderSummary(b *analysis.Bundle) string {
	s := b.Summary
	out := summaryTitle.Render("Capture summary") + "\n"
	out += fmt.Sprintf("Packets processed: %d\n", s.ProcessedPackets)
	if s.TimeSpan.First != nil && s.TimeSpan.Last != nil {
		out += fmt.Sprintf("Capture window:    %s -> %s (%.0fs)\n",
			time.Unix(int64(*s.TimeSpan.First), 0).UTC().Format("2006-01-02 15:04:05"),
			time.Unix(int64(*s.TimeSpan.Last), 0).UTC().Format("2006-01-02 15:04:05"),
			s.CaptureSeconds)
	}
	out += fmt.Sprintf("Devices found:     %d\n", s.DeviceCount)
	out += fmt.Sprintf("Unique addresses:  %d\n", s.UniqueAddressCount)
	if len(s.TopDNSQueries) > 0 {
		out += "Top DNS:           "
		for i, d := range s.TopDNSQueries {
			if i == 5 {
				break
			}
			if i > 0 {
				out += ", "
			}
			out += d.Domain
		}
		out += "\n"
	}
	if len(s.TopTLSServerNames) > 0 {
		out += "Top SNI:           "
		for i, h := range s.TopTLSServerNames {
			if i == 5 {
				break
			}
			if i > 0 {
				out += ", "
			}
			out += h.Hostname
		}
		out += "\n"
	}
	return summaryStyle.Render(out) + "\n"
}

func openInBrowser(path string) {
	for _, opener := range []string{"xdg-open", "open"} {
		if _, err := exec.LookPath(opener); err == nil {
			_ = exec.Command(opener, path).Start()
			return
		}
	}
}
