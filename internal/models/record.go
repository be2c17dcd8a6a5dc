package models

// PacketRecord holds the decoded metadata of a single captured frame.
// Every layer is optional: the decoder fills in what it could parse and
// leaves the rest zero/nil. Records are transient: the aggregation engine
// reads one, folds it into its running state and drops it.
type PacketRecord struct {
	// Timestamp is the capture time in floating-point seconds since epoch.
	// Ordering is expected but not guaranteed by the capture source.
	Timestamp float64

	// Link layer (empty when no Ethernet header decoded).
	// Canonical lowercase colon-separated form, e.g. "aa:bb:cc:dd:ee:ff".
	LinkSrc string
	LinkDst string

	// Network layer (empty when no IPv4/IPv6 header decoded).
	NetSrc string
	NetDst string

	// Protocol is the coarse label of the highest recognized layer
	// ("DNS", "TLS", "HTTP", "TCP", "ARP", ...). Used for histogram counting.
	Protocol string

	// Application-layer metadata, nil when not present on this frame.
	DNS  *DNSInfo
	TLS  *TLSInfo
	HTTP *HTTPInfo
}

// DNSInfo describes the question section of a DNS message.
type DNSInfo struct {
	IsQuery   bool
	QueryName string
	QueryType string
}

// TLSInfo carries the server name indication from a ClientHello.
type TLSInfo struct {
	ServerName string
}

// HTTPInfo describes a cleartext HTTP request. Method is always set;
// a record without a request line never produces an HTTPInfo.
type HTTPInfo struct {
	Method        string
	Host          string
	URI           string
	UserAgent     string
	HasAuthHeader bool
}
