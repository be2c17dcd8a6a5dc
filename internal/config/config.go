package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netrecon/internal/analysis"
)

// ReportOptions mirror the engine configuration in file/flag form.
type ReportOptions struct {
	SampleRate         int    `yaml:"sample_rate"`
	Limit              int    `yaml:"limit"`
	TimelineResolution string `yaml:"timeline_resolution"`
	TopN               int    `yaml:"top_n"`
	IPOnly             bool   `yaml:"ip_only"`
	NoDNS              bool   `yaml:"no_dns"`
	NoTLS              bool   `yaml:"no_tls"`
	NoHTTP             bool   `yaml:"no_http"`
}

// ToEngine converts the options into an engine Config. Validation happens
// in the engine, before any record is read.
func (r ReportOptions) ToEngine() analysis.Config {
	return analysis.Config{
		SampleRate:         r.SampleRate,
		Limit:              r.Limit,
		TimelineResolution: analysis.Resolution(r.TimelineResolution),
		TopN:               r.TopN,
		IncludeLinkLayer:   !r.IPOnly,
		EnableDNS:          !r.NoDNS,
		EnableTLS:          !r.NoTLS,
		EnableHTTP:         !r.NoHTTP,
	}
}

// RunConfig drives the full fixed-duration lab run: optional spoof,
// capture, report, dashboard.
type RunConfig struct {
	Interface string        `yaml:"interface"`
	Target    string        `yaml:"target"`
	Gateway   string        `yaml:"gateway"`
	Duration  time.Duration `yaml:"duration"`
	PcapPath  string        `yaml:"pcap"`
	OutDir    string        `yaml:"outdir"`
	Dashboard string        `yaml:"dashboard"`
	ManufFile string        `yaml:"manuf_file"`
	OpenWhenDone bool       `yaml:"open"`

	Report ReportOptions `yaml:"report"`
}

// SetDefaults fills in the values used when the file or flags leave a
// field unset.
func (c *RunConfig) SetDefaults() {
	if c.Duration == 0 {
		c.Duration = 5 * time.Minute
	}
	if c.PcapPath == "" {
		c.PcapPath = "mitm_capture.pcap"
	}
	if c.OutDir == "" {
		c.OutDir = "report_out"
	}
	if c.Dashboard == "" {
		c.Dashboard = "attacker_view.html"
	}
	if c.Report.SampleRate == 0 {
		c.Report.SampleRate = 1
	}
	if c.Report.TimelineResolution == "" {
		c.Report.TimelineResolution = string(analysis.ResolutionMinute)
	}
	if c.Report.TopN == 0 {
		c.Report.TopN = 15
	}
}

// Validate rejects an unusable run before anything touches the network.
func (c *RunConfig) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if (c.Target == "") != (c.Gateway == "") {
		return fmt.Errorf("target and gateway must be set together")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	return nil
}

// LoadRunConfig reads a YAML run configuration, applies defaults and
// validates it.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
