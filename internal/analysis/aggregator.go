package analysis

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"netrecon/internal/models"
)

// VendorLookup resolves a hardware address to a vendor name. It is called
// at most once per distinct ledgered address, on first sighting.
type VendorLookup func(hardwareAddr string) string

// deviceState is the mutable ledger entry behind a DeviceEntry.
type deviceState struct {
	vendor    string
	addrs     map[string]struct{}
	firstSeen float64
	lastSeen  float64
	packets   int
}

// Aggregator folds a stream of packet records into the derived datasets.
// One instance serves exactly one run; there is a single writer and no
// internal locking. Records are consumed in order, in a single forward
// pass, and never retained.
type Aggregator struct {
	cfg    Config
	lookup VendorLookup

	started time.Time

	position  int // raw stream position, 1-indexed, includes sampled-out records
	processed int // records accepted past sampling and limit

	haveSpan  bool
	firstSeen float64
	lastSeen  float64

	buckets   map[int64]int
	protocols *counter

	ledger      map[string]*deviceState
	ledgerOrder []string

	uniqueAddrs map[string]struct{}

	dnsRows  []DNSObservation
	tlsRows  []TLSObservation
	httpRows []HTTPObservation

	// Bounded frequency counters kept alongside the row logs so top-N
	// ranking never rescans rows at finalization.
	dnsNames  *counter
	sniNames  *counter
	httpHosts *counter
}

// New validates the configuration and builds an aggregator. A nil lookup
// is fatal when link-layer tracking is enabled: the vendor collaborator is
// a startup requirement, not a per-record fallback.
func New(cfg Config, lookup VendorLookup) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IncludeLinkLayer && lookup == nil {
		return nil, errors.New("vendor lookup is required when link-layer tracking is enabled")
	}
	return &Aggregator{
		cfg:         cfg,
		lookup:      lookup,
		started:     time.Now(),
		buckets:     make(map[int64]int),
		protocols:   newCounter(),
		ledger:      make(map[string]*deviceState),
		uniqueAddrs: make(map[string]struct{}),
		dnsNames:    newCounter(),
		sniNames:    newCounter(),
		httpHosts:   newCounter(),
	}, nil
}

// Processed reports how many records have been accepted so far.
func (a *Aggregator) Processed() int { return a.processed }

// Consume drains the record channel through ProcessRecord until the
// channel closes or the configured limit is reached. Returns the number
// of records processed.
func (a *Aggregator) Consume(records <-chan models.PacketRecord) int {
	for rec := range records {
		if !a.ProcessRecord(rec) {
			break
		}
	}
	return a.processed
}

// ProcessRecord folds one record into the aggregates. The return value is
// false once the configured limit has been reached, signalling the caller
// to stop feeding records. Every extraction step tolerates missing fields;
// a sparse record still counts toward the timeline and totals.
func (a *Aggregator) ProcessRecord(rec models.PacketRecord) bool {
	if a.cfg.Limit > 0 && a.processed >= a.cfg.Limit {
		return false
	}

	a.position++
	if a.position%a.cfg.SampleRate != 0 {
		return true
	}

	ts := rec.Timestamp

	// Capture ordering is expected but not guaranteed, so the span is
	// tracked as min/max rather than first/last.
	if !a.haveSpan {
		a.firstSeen, a.lastSeen = ts, ts
		a.haveSpan = true
	} else {
		if ts < a.firstSeen {
			a.firstSeen = ts
		}
		if ts > a.lastSeen {
			a.lastSeen = ts
		}
	}

	a.buckets[a.bucketFor(ts)]++

	if rec.Protocol != "" {
		a.protocols.add(rec.Protocol)
	}

	if a.cfg.IncludeLinkLayer {
		a.trackDevices(rec, ts)
	}

	if rec.NetSrc != "" {
		a.uniqueAddrs[rec.NetSrc] = struct{}{}
	}
	if rec.NetDst != "" {
		a.uniqueAddrs[rec.NetDst] = struct{}{}
	}

	if a.cfg.IncludeLinkLayer {
		a.mergeAddresses(rec)
	}

	if a.cfg.EnableDNS && rec.DNS != nil && rec.DNS.IsQuery && rec.DNS.QueryName != "" {
		query := strings.ToLower(rec.DNS.QueryName)
		a.dnsRows = append(a.dnsRows, DNSObservation{
			Time:     ts,
			ClientIP: rec.NetSrc,
			Query:    query,
			QType:    rec.DNS.QueryType,
		})
		a.dnsNames.add(query)
	}

	if a.cfg.EnableTLS && rec.TLS != nil && rec.TLS.ServerName != "" {
		name := strings.ToLower(rec.TLS.ServerName)
		a.tlsRows = append(a.tlsRows, TLSObservation{
			Time:       ts,
			SrcIP:      rec.NetSrc,
			DstIP:      rec.NetDst,
			ServerName: name,
		})
		a.sniNames.add(name)
	}

	if a.cfg.EnableHTTP && rec.HTTP != nil && rec.HTTP.Method != "" {
		host := strings.ToLower(rec.HTTP.Host)
		a.httpRows = append(a.httpRows, HTTPObservation{
			Time:          ts,
			SrcIP:         rec.NetSrc,
			Host:          host,
			Method:        rec.HTTP.Method,
			URI:           rec.HTTP.URI,
			UserAgent:     rec.HTTP.UserAgent,
			HasAuthHeader: rec.HTTP.HasAuthHeader,
		})
		if host != "" {
			a.httpHosts.add(host)
		}
	}

	a.processed++
	return a.cfg.Limit == 0 || a.processed < a.cfg.Limit
}

func (a *Aggregator) bucketFor(ts float64) int64 {
	size := a.cfg.TimelineResolution.BucketSeconds()
	return int64(math.Floor(ts/float64(size))) * size
}

// trackDevices updates the ledger for the record's unicast hardware
// addresses. An address appearing as both source and destination on the
// same frame counts once.
func (a *Aggregator) trackDevices(rec models.PacketRecord, ts float64) {
	macs := make([]string, 0, 2)
	if isUnicastMAC(rec.LinkSrc) {
		macs = append(macs, rec.LinkSrc)
	}
	if isUnicastMAC(rec.LinkDst) && rec.LinkDst != rec.LinkSrc {
		macs = append(macs, rec.LinkDst)
	}

	for _, mac := range macs {
		entry, ok := a.ledger[mac]
		if !ok {
			entry = &deviceState{
				vendor:    a.lookup(mac),
				addrs:     make(map[string]struct{}),
				firstSeen: ts,
				lastSeen:  ts,
				packets:   1,
			}
			a.ledger[mac] = entry
			a.ledgerOrder = append(a.ledgerOrder, mac)
			continue
		}
		if ts < entry.firstSeen {
			entry.firstSeen = ts
		}
		if ts > entry.lastSeen {
			entry.lastSeen = ts
		}
		entry.packets++
	}
}

// mergeAddresses ties the record's network addresses back to already
// ledgered devices. Only same-frame, same-role pairings are merged: a
// source address only attaches to the source device, likewise for the
// destination.
func (a *Aggregator) mergeAddresses(rec models.PacketRecord) {
	if rec.NetSrc != "" {
		if entry, ok := a.ledger[rec.LinkSrc]; ok {
			entry.addrs[rec.NetSrc] = struct{}{}
		}
	}
	if rec.NetDst != "" {
		if entry, ok := a.ledger[rec.LinkDst]; ok {
			entry.addrs[rec.NetDst] = struct{}{}
		}
	}
}

// isUnicastMAC reports whether mac is a non-empty unicast hardware
// address. Broadcast and multicast addresses (group bit set in the first
// octet) are never ledgered.
func isUnicastMAC(mac string) bool {
	if len(mac) < 2 {
		return false
	}
	octet, err := strconv.ParseUint(mac[:2], 16, 8)
	if err != nil {
		return false
	}
	return octet&0x01 == 0
}

// Finalize freezes the accumulated state into an immutable Bundle. It is
// a pure function over the aggregates; no record access happens here.
func (a *Aggregator) Finalize() *Bundle {
	devices := make([]DeviceEntry, 0, len(a.ledgerOrder))
	for _, mac := range a.ledgerOrder {
		st := a.ledger[mac]
		addrs := make([]string, 0, len(st.addrs))
		for ip := range st.addrs {
			addrs = append(addrs, ip)
		}
		sort.Strings(addrs)
		devices = append(devices, DeviceEntry{
			HardwareAddress: mac,
			Vendor:          st.vendor,
			Addresses:       addrs,
			FirstSeen:       st.firstSeen,
			LastSeen:        st.lastSeen,
			PacketCount:     st.packets,
		})
	}
	// Discovery order is already in place; a stable sort by count keeps
	// it as the tiebreak.
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].PacketCount > devices[j].PacketCount
	})

	protocols := toProtocolCounts(a.protocols.ranked())

	timeline := make([]TimelineBucket, 0, len(a.buckets))
	for bucket, count := range a.buckets {
		timeline = append(timeline, TimelineBucket{Bucket: bucket, Count: count})
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Bucket < timeline[j].Bucket })

	var span TimeSpan
	var captureSeconds float64
	if a.haveSpan {
		first, last := a.firstSeen, a.lastSeen
		span.First, span.Last = &first, &last
		captureSeconds = last - first
	}

	topDNS := make([]DomainCount, 0, a.cfg.TopN)
	for _, e := range a.dnsNames.top(a.cfg.TopN) {
		topDNS = append(topDNS, DomainCount{Domain: e.Name, Count: e.Count})
	}
	topSNI := make([]HostnameCount, 0, a.cfg.TopN)
	for _, e := range a.sniNames.top(a.cfg.TopN) {
		topSNI = append(topSNI, HostnameCount{Hostname: e.Name, Count: e.Count})
	}
	topHTTP := make([]HostCount, 0, a.cfg.TopN)
	for _, e := range a.httpHosts.top(a.cfg.TopN) {
		topHTTP = append(topHTTP, HostCount{Host: e.Name, Count: e.Count})
	}

	mixTop := protocols
	if len(mixTop) > a.cfg.TopN {
		mixTop = mixTop[:a.cfg.TopN]
	}

	return &Bundle{
		Devices:   devices,
		DNS:       a.dnsRows,
		TLS:       a.tlsRows,
		HTTP:      a.httpRows,
		Protocols: protocols,
		Timeline:  timeline,
		Summary: Summary{
			ProcessedPackets:   a.processed,
			DurationSeconds:    math.Round(time.Since(a.started).Seconds()*1000) / 1000,
			TimeSpan:           span,
			CaptureSeconds:     captureSeconds,
			DeviceCount:        len(a.ledger),
			UniqueAddressCount: len(a.uniqueAddrs),
			TimelineResolution: string(a.cfg.TimelineResolution),
			SampleRate:         a.cfg.SampleRate,
			TopN:               a.cfg.TopN,
			TopDNSQueries:      topDNS,
			TopTLSServerNames:  topSNI,
			TopHTTPHosts:       topHTTP,
			ProtocolMixTop:     mixTop,
			Notes:              caveats,
		},
	}
}

func toProtocolCounts(ranked []RankedEntry) []ProtocolCount {
	out := make([]ProtocolCount, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, ProtocolCount{Protocol: e.Name, Count: e.Count})
	}
	return out
}
