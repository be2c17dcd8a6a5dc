package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"netrecon/internal/analysis"
)

// Dataset file names inside a report directory. The timeline file carries
// the resolution in its name, e.g. timeline_minute.csv.
const (
	DevicesFile   = "devices.csv"
	DNSFile       = "dns_queries.csv"
	TLSFile       = "tls_sni.csv"
	HTTPFile      = "http_requests.csv"
	ProtocolsFile = "protocols.csv"
	SummaryFile   = "summary.json"
)

// TimelineFile returns the timeline dataset name for a resolution.
func TimelineFile(resolution string) string {
	return fmt.Sprintf("timeline_%s.csv", resolution)
}

// WriteDatasets persists the full bundle as CSV datasets plus summary.json.
// Everything is staged into a temp directory and promoted into place by
// rename only once every file has been written, so consumers never observe
// a partial report.
func WriteDatasets(b *analysis.Bundle, inputPath, outdir string) error {
	absOut, err := filepath.Abs(outdir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absOut), 0o755); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(filepath.Dir(absOut), ".netrecon-report-*")
	if err != nil {
		return fmt.Errorf("stage report dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeAll(b, inputPath, absOut, tmp); err != nil {
		return err
	}
	return promote(tmp, absOut)
}

func writeAll(b *analysis.Bundle, inputPath, absOut, dir string) error {
	deviceRows := make([][]string, 0, len(b.Devices))
	for _, d := range b.Devices {
		deviceRows = append(deviceRows, []string{
			d.HardwareAddress,
			d.Vendor,
			strings.Join(d.Addresses, ";"),
			epoch(d.FirstSeen),
			epoch(d.LastSeen),
			strconv.Itoa(d.PacketCount),
		})
	}
	if err := writeCSV(dir, DevicesFile,
		[]string{"mac", "vendor", "ips_seen", "first_seen_epoch", "last_seen_epoch", "packet_count"},
		deviceRows); err != nil {
		return err
	}

	dnsRows := make([][]string, 0, len(b.DNS))
	for _, r := range b.DNS {
		dnsRows = append(dnsRows, []string{epoch(r.Time), r.ClientIP, r.Query, r.QType})
	}
	if err := writeCSV(dir, DNSFile,
		[]string{"time_epoch", "client_ip", "query", "qtype"}, dnsRows); err != nil {
		return err
	}

	tlsRows := make([][]string, 0, len(b.TLS))
	for _, r := range b.TLS {
		tlsRows = append(tlsRows, []string{epoch(r.Time), r.SrcIP, r.DstIP, r.ServerName})
	}
	if err := writeCSV(dir, TLSFile,
		[]string{"time_epoch", "src_ip", "dst_ip", "sni_hostname"}, tlsRows); err != nil {
		return err
	}

	httpRows := make([][]string, 0, len(b.HTTP))
	for _, r := range b.HTTP {
		httpRows = append(httpRows, []string{
			epoch(r.Time), r.SrcIP, r.Host, r.Method, r.URI, r.UserAgent,
			strconv.FormatBool(r.HasAuthHeader),
		})
	}
	if err := writeCSV(dir, HTTPFile,
		[]string{"time_epoch", "src_ip", "host", "method", "uri", "user_agent", "has_auth_header"},
		httpRows); err != nil {
		return err
	}

	protoRows := make([][]string, 0, len(b.Protocols))
	for _, p := range b.Protocols {
		protoRows = append(protoRows, []string{p.Protocol, strconv.Itoa(p.Count)})
	}
	if err := writeCSV(dir, ProtocolsFile,
		[]string{"protocol", "packet_count"}, protoRows); err != nil {
		return err
	}

	resolution := b.Summary.TimelineResolution
	timelineRows := make([][]string, 0, len(b.Timeline))
	for _, t := range b.Timeline {
		timelineRows = append(timelineRows, []string{
			strconv.FormatInt(t.Bucket, 10), strconv.Itoa(t.Count),
		})
	}
	if err := writeCSV(dir, TimelineFile(resolution),
		[]string{resolution + "_epoch", "packet_count"}, timelineRows); err != nil {
		return err
	}

	sum := b.Summary
	sum.InputPath = inputPath
	sum.OutputDir = absOut
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, SummaryFile), append(data, '\n'), 0o644)
}

func writeCSV(dir, name string, header []string, rows [][]string) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Sync()
}

// promote swaps the staged directory into the destination. An existing
// report directory is replaced; if the swap fails halfway the previous
// report is restored.
func promote(tmp, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		stale := dest + ".old"
		os.RemoveAll(stale)
		if err := os.Rename(dest, stale); err != nil {
			return fmt.Errorf("move previous report aside: %w", err)
		}
		if err := os.Rename(tmp, dest); err != nil {
			os.Rename(stale, dest)
			return fmt.Errorf("promote report: %w", err)
		}
		return os.RemoveAll(stale)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("promote report: %w", err)
	}
	return nil
}

func epoch(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}
