package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"netrecon/internal/analysis"
)

func TestLoadRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
interface: eth0
target: 192.168.1.10
gateway: 192.168.1.1
duration: 2m
report:
  sample_rate: 4
  timeline_resolution: second
  no_http: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig: %v", err)
	}
	if cfg.Interface != "eth0" || cfg.Duration != 2*time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.OutDir != "report_out" || cfg.Dashboard != "attacker_view.html" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	ec := cfg.Report.ToEngine()
	if ec.SampleRate != 4 || ec.TimelineResolution != analysis.ResolutionSecond {
		t.Errorf("engine config = %+v", ec)
	}
	if ec.EnableHTTP || !ec.EnableDNS || !ec.EnableTLS {
		t.Errorf("extraction flags = %+v", ec)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("engine config invalid: %v", err)
	}
}

func TestValidateRejectsHalfSpoofPair(t *testing.T) {
	cfg := &RunConfig{Interface: "eth0", Target: "192.168.1.10"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for target without gateway")
	}
}

func TestValidateRequiresInterface(t *testing.T) {
	cfg := &RunConfig{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing interface")
	}
}
