package decode

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netrecon/internal/models"
)

// StartFileCapture opens a capture file and streams decoded records to the
// out channel from a background goroutine. The channel is closed when the
// file is exhausted or the context ends, so consumers can range over it.
// Records are produced lazily; the file is never materialized in memory.
func StartFileCapture(ctx context.Context, path string, out chan<- models.PacketRecord) error {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return fmt.Errorf("open capture %s: %w", path, err)
	}

	go func() {
		defer close(out)
		defer handle.Close()

		src := gopacket.NewPacketSource(handle, handle.LinkType())
		src.Lazy = true
		src.NoCopy = true

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-src.Packets():
				if !ok {
					return
				}
				select {
				case out <- Convert(packet):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

// Convert extracts the metadata record for one decoded packet. Every field
// is best-effort: a layer that failed to decode simply stays absent on the
// record, and a malformed packet still yields a usable timestamped record.
func Convert(packet gopacket.Packet) models.PacketRecord {
	var rec models.PacketRecord

	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		rec.Timestamp = float64(md.Timestamp.UnixNano()) / 1e9
	}

	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		rec.LinkSrc = eth.SrcMAC.String()
		rec.LinkDst = eth.DstMAC.String()
	}

	// Prefer IPv4; fall back to IPv6. Never both.
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		rec.NetSrc = ip.SrcIP.String()
		rec.NetDst = ip.DstIP.String()
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		rec.NetSrc = ip.SrcIP.String()
		rec.NetDst = ip.DstIP.String()
	}

	rec.Protocol = highestLayer(packet)

	if l := packet.Layer(layers.LayerTypeDNS); l != nil {
		dns := l.(*layers.DNS)
		if len(dns.Questions) > 0 {
			rec.DNS = &models.DNSInfo{
				IsQuery:   !dns.QR,
				QueryName: string(dns.Questions[0].Name),
				QueryType: dns.Questions[0].Type.String(),
			}
		}
	}

	// gopacket has no decoders for TLS extensions or HTTP; probe the TCP
	// payload directly.
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		payload := l.(*layers.TCP).Payload
		if name, ok := clientHelloServerName(payload); ok {
			rec.TLS = &models.TLSInfo{ServerName: name}
			rec.Protocol = "TLS"
		} else if req, ok := parseHTTPRequest(payload); ok {
			rec.HTTP = req
			rec.Protocol = "HTTP"
		}
	}

	return rec
}

// highestLayer labels the packet by its deepest successfully decoded
// layer, skipping raw payload and decode-failure pseudo layers.
func highestLayer(packet gopacket.Packet) string {
	label := ""
	for _, l := range packet.Layers() {
		t := l.LayerType()
		if t == gopacket.LayerTypePayload || t == gopacket.LayerTypeDecodeFailure {
			continue
		}
		label = t.String()
	}
	return label
}
