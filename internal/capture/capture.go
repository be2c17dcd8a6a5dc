package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

// ToFile captures live traffic from iface into a pcap file at path until
// the context ends, returning the number of packets written. An optional
// BPF filter keeps the spoofer's own retransmissions out of the capture.
func ToFile(ctx context.Context, iface, bpfFilter, path string) (int, error) {
	// A short read timeout keeps the loop responsive to cancellation;
	// BlockForever would pin us inside the pcap read.
	handle, err := pcap.OpenLive(iface, snapLen, true, 500*time.Millisecond)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", iface, err)
	}
	defer handle.Close()

	if bpfFilter != "" {
		if err := handle.SetBPFFilter(bpfFilter); err != nil {
			return 0, fmt.Errorf("set filter %q: %w", bpfFilter, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create capture file: %w", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, handle.LinkType()); err != nil {
		return 0, err
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, f.Sync()
		default:
		}

		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return count, f.Sync()
			}
			return count, fmt.Errorf("read packet: %w", err)
		}
		if err := w.WritePacket(ci, data); err != nil {
			return count, fmt.Errorf("write packet: %w", err)
		}
		count++
	}
}
