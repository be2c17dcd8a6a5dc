package analysis

import "fmt"

// Resolution selects the timeline bucket width. Exactly one resolution is
// active per run.
type Resolution string

const (
	ResolutionSecond Resolution = "second"
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
)

// BucketSeconds returns the bucket width in seconds, or 0 for an
// unrecognized resolution.
func (r Resolution) BucketSeconds() int64 {
	switch r {
	case ResolutionSecond:
		return 1
	case ResolutionMinute:
		return 60
	case ResolutionHour:
		return 3600
	}
	return 0
}

// Config controls one aggregation run. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// SampleRate keeps every Nth record by stream position (1 = keep all).
	SampleRate int
	// Limit stops the pass after this many accepted records (0 = unbounded).
	Limit int
	// TimelineResolution is the bucket width for the traffic timeline.
	TimelineResolution Resolution
	// TopN caps each ranked list in the summary.
	TopN int
	// IncludeLinkLayer enables the device ledger. When false the run is
	// IP-only: no ledger, no vendor lookups, no MAC/IP correlation.
	IncludeLinkLayer bool
	// Per-protocol extraction switches.
	EnableDNS  bool
	EnableTLS  bool
	EnableHTTP bool
}

// DefaultConfig returns the options used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		SampleRate:         1,
		Limit:              0,
		TimelineResolution: ResolutionMinute,
		TopN:               15,
		IncludeLinkLayer:   true,
		EnableDNS:          true,
		EnableTLS:          true,
		EnableHTTP:         true,
	}
}

// Validate rejects invalid option values before any processing starts.
// TopN is coerced to at least 1 rather than rejected.
func (c *Config) Validate() error {
	if c.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be >= 1, got %d", c.SampleRate)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", c.Limit)
	}
	if c.TimelineResolution.BucketSeconds() == 0 {
		return fmt.Errorf("timeline_resolution must be one of second, minute, hour; got %q", c.TimelineResolution)
	}
	if c.TopN < 1 {
		c.TopN = 1
	}
	return nil
}
