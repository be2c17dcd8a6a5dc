package analysis

// DeviceEntry is one finalized row of the device ledger.
type DeviceEntry struct {
	HardwareAddress string
	Vendor          string
	Addresses       []string // observed network addresses, sorted
	FirstSeen       float64
	LastSeen        float64
	PacketCount     int
}

// DNSObservation is one recorded DNS query.
type DNSObservation struct {
	Time     float64
	ClientIP string
	Query    string
	QType    string
}

// TLSObservation is one recorded server name indication.
type TLSObservation struct {
	Time       float64
	SrcIP      string
	DstIP      string
	ServerName string
}

// HTTPObservation is one recorded cleartext HTTP request.
type HTTPObservation struct {
	Time          float64
	SrcIP         string
	Host          string
	Method        string
	URI           string
	UserAgent     string
	HasAuthHeader bool
}

// TimelineBucket is one point of the traffic timeline.
type TimelineBucket struct {
	Bucket int64 // bucket start, seconds since epoch
	Count  int
}

// Ranked summary rows. The JSON field names are part of the summary.json
// contract and differ per list.

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type HostnameCount struct {
	Hostname string `json:"hostname"`
	Count    int    `json:"count"`
}

type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

type ProtocolCount struct {
	Protocol string `json:"protocol"`
	Count    int    `json:"count"`
}

// TimeSpan is the observed capture window. Nil pointers mean no records
// were accepted.
type TimeSpan struct {
	First *float64 `json:"first"`
	Last  *float64 `json:"last"`
}

// Summary is the scalar-and-ranking view of a finished run, persisted as
// summary.json.
type Summary struct {
	InputPath          string          `json:"input_pcap,omitempty"`
	OutputDir          string          `json:"outdir,omitempty"`
	ProcessedPackets   int             `json:"processed_packets"`
	DurationSeconds    float64         `json:"duration_seconds"`
	TimeSpan           TimeSpan        `json:"time_span_epoch"`
	CaptureSeconds     float64         `json:"capture_seconds"`
	DeviceCount        int             `json:"device_count"`
	UniqueAddressCount int             `json:"unique_ip_count"`
	TimelineResolution string          `json:"timeline_resolution"`
	SampleRate         int             `json:"sample_rate"`
	TopN               int             `json:"top_n"`
	TopDNSQueries      []DomainCount   `json:"top_dns_queries"`
	TopTLSServerNames  []HostnameCount `json:"top_tls_sni"`
	TopHTTPHosts       []HostCount     `json:"top_http_hosts"`
	ProtocolMixTop     []ProtocolCount `json:"protocol_mix_top"`
	Notes              []string        `json:"notes"`
}

// Bundle is the finalized, read-only output of one aggregation run.
type Bundle struct {
	Devices   []DeviceEntry
	DNS       []DNSObservation
	TLS       []TLSObservation
	HTTP      []HTTPObservation
	Protocols []ProtocolCount // full histogram, count descending
	Timeline  []TimelineBucket
	Summary   Summary
}

// caveats are the fixed analyst-facing notes attached to every summary.
var caveats = []string{
	"MAC vendor inference uses the IEEE OUI database.",
	"SNI is visible from TLS ClientHello unless Encrypted Client Hello is in use.",
	"DNS queries leak domains unless DNS-over-HTTPS/DoT is enforced.",
	"Counts reflect the configured sample_rate; sampled runs undercount absolute volume.",
}
