package analysis

import (
	"fmt"
	"reflect"
	"testing"

	"netrecon/internal/models"
)

func unknownVendor(string) string { return "Unknown Vendor" }

func newTestAggregator(t *testing.T, cfg Config) *Aggregator {
	t.Helper()
	a, err := New(cfg, unknownVendor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func feed(a *Aggregator, recs ...models.PacketRecord) {
	for _, rec := range recs {
		if !a.ProcessRecord(rec) {
			break
		}
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	if _, err := New(cfg, unknownVendor); err == nil {
		t.Error("expected error for sample rate 0")
	}

	cfg = DefaultConfig()
	cfg.Limit = -1
	if _, err := New(cfg, unknownVendor); err == nil {
		t.Error("expected error for negative limit")
	}

	cfg = DefaultConfig()
	cfg.TimelineResolution = "fortnight"
	if _, err := New(cfg, unknownVendor); err == nil {
		t.Error("expected error for unknown resolution")
	}

	cfg = DefaultConfig()
	cfg.TopN = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.TopN != 1 {
		t.Errorf("TopN not coerced to 1, got %d", cfg.TopN)
	}

	cfg = DefaultConfig()
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for nil vendor lookup with link layer enabled")
	}
	cfg.IncludeLinkLayer = false
	if _, err := New(cfg, nil); err != nil {
		t.Errorf("nil lookup should be allowed in IP-only mode: %v", err)
	}
}

func TestSamplingKeepsEveryNth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 3
	cfg.TimelineResolution = ResolutionSecond
	a := newTestAggregator(t, cfg)

	for i := 1; i <= 10; i++ {
		a.ProcessRecord(models.PacketRecord{Timestamp: float64(i)})
	}

	b := a.Finalize()
	if b.Summary.ProcessedPackets != 3 {
		t.Fatalf("processed = %d, want 3", b.Summary.ProcessedPackets)
	}
	want := []int64{3, 6, 9}
	if len(b.Timeline) != len(want) {
		t.Fatalf("timeline has %d buckets, want %d", len(b.Timeline), len(want))
	}
	for i, bucket := range b.Timeline {
		if bucket.Bucket != want[i] || bucket.Count != 1 {
			t.Errorf("bucket %d = {%d %d}, want {%d 1}", i, bucket.Bucket, bucket.Count, want[i])
		}
	}
}

func TestLimitStopsAfterAcceptedCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = 4
	a := newTestAggregator(t, cfg)

	stopped := 0
	for i := 0; i < 10; i++ {
		if !a.ProcessRecord(models.PacketRecord{Timestamp: float64(i)}) {
			stopped = i
			break
		}
	}
	if a.Processed() != 4 {
		t.Errorf("processed = %d, want 4", a.Processed())
	}
	if stopped != 3 {
		t.Errorf("stop signalled at record %d, want 3 (the 4th)", stopped)
	}

	cfg.Limit = 0
	a = newTestAggregator(t, cfg)
	for i := 0; i < 10; i++ {
		a.ProcessRecord(models.PacketRecord{Timestamp: float64(i)})
	}
	if a.Processed() != 10 {
		t.Errorf("unbounded run processed %d, want 10", a.Processed())
	}
}

func TestLimitCountsAcceptedNotPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 2
	cfg.Limit = 3
	a := newTestAggregator(t, cfg)

	n := 0
	for i := 1; i <= 100; i++ {
		n++
		if !a.ProcessRecord(models.PacketRecord{Timestamp: float64(i)}) {
			break
		}
	}
	if a.Processed() != 3 {
		t.Errorf("processed = %d, want 3", a.Processed())
	}
	// Positions 2, 4, 6 are the accepted ones.
	if n != 6 {
		t.Errorf("consumed %d raw records, want 6", n)
	}
}

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		res  Resolution
		want int64
	}{
		{ResolutionSecond, 125},
		{ResolutionMinute, 60},
		{ResolutionHour, 0},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		cfg.TimelineResolution = tc.res
		a := newTestAggregator(t, cfg)
		a.ProcessRecord(models.PacketRecord{Timestamp: 125.7})
		b := a.Finalize()
		if len(b.Timeline) != 1 || b.Timeline[0].Bucket != tc.want {
			t.Errorf("%s: timeline = %+v, want single bucket %d", tc.res, b.Timeline, tc.want)
		}
	}
}

func TestDeviceMergeAcrossSightings(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a,
		models.PacketRecord{Timestamp: 1, LinkSrc: "aa:aa:aa:aa:aa:aa", NetSrc: "10.0.0.1"},
		models.PacketRecord{Timestamp: 5, LinkSrc: "aa:aa:aa:aa:aa:aa", NetSrc: "10.0.0.2"},
	)
	b := a.Finalize()
	if len(b.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(b.Devices))
	}
	d := b.Devices[0]
	if d.FirstSeen != 1 || d.LastSeen != 5 {
		t.Errorf("first/last = %v/%v, want 1/5", d.FirstSeen, d.LastSeen)
	}
	if d.PacketCount != 2 {
		t.Errorf("packet count = %d, want 2", d.PacketCount)
	}
	if !reflect.DeepEqual(d.Addresses, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Errorf("addresses = %v", d.Addresses)
	}
}

func TestBroadcastAndMulticastNeverLedgered(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a,
		models.PacketRecord{Timestamp: 1, LinkSrc: "aa:aa:aa:aa:aa:aa", LinkDst: "ff:ff:ff:ff:ff:ff"},
		models.PacketRecord{Timestamp: 2, LinkSrc: "aa:aa:aa:aa:aa:aa", LinkDst: "01:00:5e:00:00:fb"},
	)
	b := a.Finalize()
	if len(b.Devices) != 1 {
		t.Fatalf("devices = %d, want 1 (only the unicast source)", len(b.Devices))
	}
	if b.Devices[0].HardwareAddress != "aa:aa:aa:aa:aa:aa" {
		t.Errorf("unexpected device %q", b.Devices[0].HardwareAddress)
	}
}

func TestSameAddressBothRolesCountsOnce(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a, models.PacketRecord{
		Timestamp: 1,
		LinkSrc:   "aa:aa:aa:aa:aa:aa",
		LinkDst:   "aa:aa:aa:aa:aa:aa",
	})
	b := a.Finalize()
	if len(b.Devices) != 1 || b.Devices[0].PacketCount != 1 {
		t.Fatalf("devices = %+v, want one entry with packet count 1", b.Devices)
	}
}

func TestVendorResolvedOncePerDevice(t *testing.T) {
	calls := 0
	a, err := New(DefaultConfig(), func(mac string) string {
		calls++
		return "Acme"
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		a.ProcessRecord(models.PacketRecord{Timestamp: float64(i), LinkSrc: "aa:aa:aa:aa:aa:aa"})
	}
	if calls != 1 {
		t.Errorf("vendor lookup called %d times, want 1", calls)
	}
	if b := a.Finalize(); b.Devices[0].Vendor != "Acme" {
		t.Errorf("vendor = %q", b.Devices[0].Vendor)
	}
}

func TestRankingTieBreaksByFirstSeen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 2
	a := newTestAggregator(t, cfg)

	add := func(name string, n int) {
		for i := 0; i < n; i++ {
			a.ProcessRecord(models.PacketRecord{
				Timestamp: 1,
				DNS:       &models.DNSInfo{IsQuery: true, QueryName: name, QueryType: "A"},
			})
		}
	}
	add("a.example", 5)
	add("b.example", 5)
	add("c.example", 1)

	top := a.Finalize().Summary.TopDNSQueries
	if len(top) != 2 {
		t.Fatalf("top list has %d entries, want 2", len(top))
	}
	if top[0].Domain != "a.example" || top[1].Domain != "b.example" {
		t.Errorf("top = %+v, want a.example then b.example", top)
	}
}

func TestSparseRecordStillCounts(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a, models.PacketRecord{Timestamp: 100, Protocol: "ARP"})
	b := a.Finalize()

	if b.Summary.ProcessedPackets != 1 {
		t.Errorf("processed = %d, want 1", b.Summary.ProcessedPackets)
	}
	if len(b.Protocols) != 1 || b.Protocols[0].Protocol != "ARP" {
		t.Errorf("protocols = %+v", b.Protocols)
	}
	if len(b.Timeline) != 1 {
		t.Errorf("timeline = %+v", b.Timeline)
	}
	if len(b.DNS)+len(b.TLS)+len(b.HTTP) != 0 {
		t.Error("sparse record produced observation rows")
	}
}

func TestDisabledExtractorsProduceEmptyLogs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableDNS = false
	cfg.EnableTLS = false
	cfg.EnableHTTP = false
	a := newTestAggregator(t, cfg)
	feed(a, models.PacketRecord{
		Timestamp: 1,
		DNS:       &models.DNSInfo{IsQuery: true, QueryName: "x.example", QueryType: "A"},
		TLS:       &models.TLSInfo{ServerName: "x.example"},
		HTTP:      &models.HTTPInfo{Method: "GET", Host: "x.example"},
	})
	b := a.Finalize()
	if len(b.DNS)+len(b.TLS)+len(b.HTTP) != 0 {
		t.Error("disabled extractors still produced rows")
	}
	if b.Summary.ProcessedPackets != 1 {
		t.Errorf("processed = %d, want 1", b.Summary.ProcessedPackets)
	}
}

func TestDNSResponsesIgnored(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a, models.PacketRecord{
		Timestamp: 1,
		DNS:       &models.DNSInfo{IsQuery: false, QueryName: "x.example", QueryType: "A"},
	})
	if b := a.Finalize(); len(b.DNS) != 0 {
		t.Errorf("response produced %d DNS rows", len(b.DNS))
	}
}

func TestIPOnlyModeSkipsLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeLinkLayer = false
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	feed(a, models.PacketRecord{
		Timestamp: 1,
		LinkSrc:   "aa:aa:aa:aa:aa:aa",
		NetSrc:    "10.0.0.1",
		NetDst:    "10.0.0.2",
	})
	b := a.Finalize()
	if len(b.Devices) != 0 {
		t.Errorf("devices = %+v, want none in IP-only mode", b.Devices)
	}
	if b.Summary.UniqueAddressCount != 2 {
		t.Errorf("unique addresses = %d, want 2", b.Summary.UniqueAddressCount)
	}
}

func TestSpanTracksMinMaxNotOrder(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	feed(a,
		models.PacketRecord{Timestamp: 50},
		models.PacketRecord{Timestamp: 10},
		models.PacketRecord{Timestamp: 30},
	)
	s := a.Finalize().Summary
	if s.TimeSpan.First == nil || *s.TimeSpan.First != 10 {
		t.Errorf("first = %v, want 10", s.TimeSpan.First)
	}
	if s.TimeSpan.Last == nil || *s.TimeSpan.Last != 50 {
		t.Errorf("last = %v, want 50", s.TimeSpan.Last)
	}
	if s.CaptureSeconds != 40 {
		t.Errorf("capture seconds = %v, want 40", s.CaptureSeconds)
	}
}

func TestEmptyRunHasNilSpan(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	s := a.Finalize().Summary
	if s.TimeSpan.First != nil || s.TimeSpan.Last != nil {
		t.Errorf("span = %+v, want nil/nil", s.TimeSpan)
	}
}

func syntheticMinuteOfDNS() []models.PacketRecord {
	recs := make([]models.PacketRecord, 0, 60)
	for i := 0; i < 60; i++ {
		name := "foo.example"
		if i%2 == 1 {
			name = "bar.example"
		}
		recs = append(recs, models.PacketRecord{
			Timestamp: float64(1000 + i),
			LinkSrc:   "aa:aa:aa:aa:aa:aa",
			LinkDst:   "bb:bb:bb:bb:bb:bb",
			NetSrc:    "10.0.0.1",
			NetDst:    "10.0.0.53",
			Protocol:  "DNS",
			DNS:       &models.DNSInfo{IsQuery: true, QueryName: name, QueryType: "A"},
		})
	}
	return recs
}

func TestEndToEndMinuteOfTraffic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimelineResolution = ResolutionSecond
	a := newTestAggregator(t, cfg)
	feed(a, syntheticMinuteOfDNS()...)
	b := a.Finalize()

	if len(b.Timeline) != 60 {
		t.Fatalf("timeline has %d buckets, want 60", len(b.Timeline))
	}
	for i, bucket := range b.Timeline {
		if bucket.Bucket != int64(1000+i) || bucket.Count != 1 {
			t.Fatalf("bucket %d = %+v", i, bucket)
		}
	}
	// foo and bar tie at 30 each; foo was inserted first.
	top := b.Summary.TopDNSQueries
	if top[0].Domain != "foo.example" || top[0].Count != 30 {
		t.Errorf("top DNS = %+v, want foo.example x30 first", top[0])
	}
	if b.Summary.DeviceCount != 2 {
		t.Errorf("device count = %d, want 2", b.Summary.DeviceCount)
	}
}

func TestIdenticalInputsYieldIdenticalBundles(t *testing.T) {
	run := func() *Bundle {
		a := newTestAggregator(t, DefaultConfig())
		feed(a, syntheticMinuteOfDNS()...)
		return a.Finalize()
	}
	b1, b2 := run(), run()
	b1.Summary.DurationSeconds = 0
	b2.Summary.DurationSeconds = 0
	if !reflect.DeepEqual(b1, b2) {
		t.Error("two runs over the same input diverged")
	}
}

func TestProtocolHistogramStableOrder(t *testing.T) {
	a := newTestAggregator(t, DefaultConfig())
	labels := []string{"TCP", "UDP", "TCP", "DNS", "UDP"}
	for i, l := range labels {
		a.ProcessRecord(models.PacketRecord{Timestamp: float64(i), Protocol: l})
	}
	got := a.Finalize().Protocols
	want := []ProtocolCount{{"TCP", 2}, {"UDP", 2}, {"DNS", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("protocols = %v, want %v", got, want)
	}
}

func TestConsumeDrainsChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = 5
	a := newTestAggregator(t, cfg)

	ch := make(chan models.PacketRecord, 20)
	for i := 0; i < 20; i++ {
		ch <- models.PacketRecord{Timestamp: float64(i)}
	}
	close(ch)

	if n := a.Consume(ch); n != 5 {
		t.Errorf("Consume returned %d, want 5", n)
	}
}

func TestCounterRankedFullTable(t *testing.T) {
	c := newCounter()
	for i := 0; i < 3; i++ {
		c.add("x")
	}
	c.add("y")
	c.add("z")
	c.add("z")

	got := c.ranked()
	want := []RankedEntry{{"x", 3}, {"z", 2}, {"y", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ranked = %v, want %v", got, want)
	}
	if top := c.top(2); len(top) != 2 || top[0].Name != "x" {
		t.Errorf("top(2) = %v", top)
	}
}

func BenchmarkProcessRecord(b *testing.B) {
	a, _ := New(DefaultConfig(), unknownVendor)
	recs := syntheticMinuteOfDNS()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := recs[i%len(recs)]
		rec.Timestamp = float64(i)
		a.ProcessRecord(rec)
	}
	_ = fmt.Sprintf("%d", a.Processed())
}
