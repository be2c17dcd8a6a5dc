package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"netrecon/internal/analysis"
	"netrecon/internal/models"
)

func sampleBundle(t *testing.T) *analysis.Bundle {
	t.Helper()
	cfg := analysis.DefaultConfig()
	cfg.TimelineResolution = analysis.ResolutionSecond
	a, err := analysis.New(cfg, func(string) string { return "Acme Devices" })
	if err != nil {
		t.Fatal(err)
	}

	a.ProcessRecord(models.PacketRecord{
		Timestamp: 1000.5,
		LinkSrc:   "aa:aa:aa:aa:aa:aa",
		LinkDst:   "bb:bb:bb:bb:bb:bb",
		NetSrc:    "192.168.1.10",
		NetDst:    "1.1.1.1",
		Protocol:  "DNS",
		DNS:       &models.DNSInfo{IsQuery: true, QueryName: "Example.COM", QueryType: "A"},
	})
	a.ProcessRecord(models.PacketRecord{
		Timestamp: 1001.25,
		LinkSrc:   "aa:aa:aa:aa:aa:aa",
		LinkDst:   "bb:bb:bb:bb:bb:bb",
		NetSrc:    "192.168.1.10",
		NetDst:    "93.184.216.34",
		Protocol:  "TLS",
		TLS:       &models.TLSInfo{ServerName: "example.com"},
	})
	a.ProcessRecord(models.PacketRecord{
		Timestamp: 1002,
		LinkSrc:   "aa:aa:aa:aa:aa:aa",
		LinkDst:   "bb:bb:bb:bb:bb:bb",
		NetSrc:    "192.168.1.10",
		NetDst:    "93.184.216.34",
		Protocol:  "HTTP",
		HTTP: &models.HTTPInfo{
			Method: "GET", Host: "Example.com", URI: "/login",
			UserAgent: "curl/8.0", HasAuthHeader: true,
		},
	})
	return a.Finalize()
}

func TestWriteDatasets(t *testing.T) {
	outdir := filepath.Join(t.TempDir(), "report_out")
	b := sampleBundle(t)

	if err := WriteDatasets(b, "capture.pcap", outdir); err != nil {
		t.Fatalf("WriteDatasets: %v", err)
	}

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(outdir, name))
		if err != nil {
			t.Fatalf("missing dataset %s: %v", name, err)
		}
		return string(data)
	}

	devices := read(DevicesFile)
	if !strings.HasPrefix(devices, "mac,vendor,ips_seen,first_seen_epoch,last_seen_epoch,packet_count\n") {
		t.Errorf("devices header wrong:\n%s", devices)
	}
	if !strings.Contains(devices, "aa:aa:aa:aa:aa:aa,Acme Devices,192.168.1.10,1000.500000,1002.000000,3") {
		t.Errorf("devices row wrong:\n%s", devices)
	}

	dns := read(DNSFile)
	if !strings.Contains(dns, "1000.500000,192.168.1.10,example.com,A") {
		t.Errorf("dns row wrong:\n%s", dns)
	}

	tls := read(TLSFile)
	if !strings.Contains(tls, "1001.250000,192.168.1.10,93.184.216.34,example.com") {
		t.Errorf("tls row wrong:\n%s", tls)
	}

	http := read(HTTPFile)
	if !strings.Contains(http, "1002.000000,192.168.1.10,example.com,GET,/login,curl/8.0,true") {
		t.Errorf("http row wrong:\n%s", http)
	}

	timeline := read(TimelineFile("second"))
	if !strings.HasPrefix(timeline, "second_epoch,packet_count\n1000,1\n1001,1\n1002,1\n") {
		t.Errorf("timeline wrong:\n%s", timeline)
	}

	var sum analysis.Summary
	if err := json.Unmarshal([]byte(read(SummaryFile)), &sum); err != nil {
		t.Fatalf("summary.json invalid: %v", err)
	}
	if sum.ProcessedPackets != 3 || sum.DeviceCount != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.InputPath != "capture.pcap" {
		t.Errorf("input path = %q", sum.InputPath)
	}
	if len(sum.Notes) == 0 {
		t.Error("summary caveats missing")
	}
}

func TestWriteDatasetsReplacesPreviousReport(t *testing.T) {
	outdir := filepath.Join(t.TempDir(), "report_out")
	b := sampleBundle(t)

	if err := WriteDatasets(b, "a.pcap", outdir); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(outdir, "stale-file")
	if err := os.WriteFile(marker, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteDatasets(b, "b.pcap", outdir); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("previous report contents survived promotion")
	}
	if _, err := os.Stat(outdir + ".old"); !os.IsNotExist(err) {
		t.Error("stale backup directory left behind")
	}
}

func TestWriteDashboard(t *testing.T) {
	outdir := filepath.Join(t.TempDir(), "report_out")
	if err := WriteDatasets(sampleBundle(t), "capture.pcap", outdir); err != nil {
		t.Fatal(err)
	}

	htmlPath := filepath.Join(t.TempDir(), "report.html")
	if err := WriteDashboard(filepath.Join(outdir, SummaryFile), htmlPath); err != nil {
		t.Fatalf("WriteDashboard: %v", err)
	}

	data, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	for _, want := range []string{
		"Capture Metadata Report",
		"example.com",
		"aa:aa:aa:aa:aa:aa",
		"Acme Devices",
		"protocolChart",
		"timelineChart",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestWriteDashboardRejectsPartialReport(t *testing.T) {
	dir := t.TempDir()
	summary := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(summary, []byte(`{"timeline_resolution":"minute","top_n":5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDashboard(summary, filepath.Join(dir, "out.html")); err == nil {
		t.Error("expected error for missing datasets")
	}
}

func TestRankColumn(t *testing.T) {
	rows := [][]string{
		{"x", "a.example"},
		{"x", "b.example"},
		{"x", "a.example"},
		{"x", "c.example"},
		{"x", "b.example"},
	}
	top := rankColumn(rows, 1, 2)
	if len(top) != 2 {
		t.Fatalf("top = %v", top)
	}
	if top[0][0] != "a.example" || top[0][1] != 2 {
		t.Errorf("top[0] = %v, want a.example x2 (tie broken by first appearance)", top[0])
	}
	if top[1][0] != "b.example" {
		t.Errorf("top[1] = %v", top[1])
	}
}
