package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netrecon/internal/oui"
)

// ScanConfig bounds an ARP sweep.
type ScanConfig struct {
	// RequestInterval paces outgoing ARP requests so the send buffer is
	// not overrun. Default 50µs.
	RequestInterval time.Duration
	// IdleWait is how long to collect late replies after the last probe.
	// Default 500ms.
	IdleWait time.Duration
	// MaxHosts caps probes on large subnets. Default 4096; <= 0 disables.
	MaxHosts int
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.RequestInterval <= 0 {
		c.RequestInterval = 50 * time.Microsecond
	}
	if c.IdleWait <= 0 {
		c.IdleWait = 500 * time.Millisecond
	}
	if c.MaxHosts == 0 {
		c.MaxHosts = 4096
	}
	return c
}

// Scan probes the interface's IPv4 subnet with ARP requests and returns
// the hosts that answered, vendor-labelled and sorted by address. The
// local host itself is excluded.
func Scan(ctx context.Context, iface string, vendors *oui.Resolver, cfg ScanConfig) ([]Host, error) {
	cfg = cfg.withDefaults()

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", iface, err)
	}
	localIP, localNet, err := interfaceSubnet(ifi)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(iface, 65536, true, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open handle: %w", err)
	}
	defer handle.Close()
	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("set arp filter: %w", err)
	}

	found := make(map[string]Host)
	stop := make(chan struct{})
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			data, _, err := handle.ReadPacketData()
			if err != nil {
				if errors.Is(err, pcap.NextErrorTimeoutExpired) {
					continue
				}
				return
			}
			packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
			arpLayer := packet.Layer(layers.LayerTypeARP)
			if arpLayer == nil {
				continue
			}
			reply := arpLayer.(*layers.ARP)
			if reply.Operation != layers.ARPReply {
				continue
			}
			ip := make(net.IP, len(reply.SourceProtAddress))
			copy(ip, reply.SourceProtAddress)
			if !localNet.Contains(ip) || ip.Equal(localIP) {
				continue
			}
			mac := make(net.HardwareAddr, len(reply.SourceHwAddress))
			copy(mac, reply.SourceHwAddress)

			if _, seen := found[ip.String()]; !seen {
				found[ip.String()] = Host{IP: ip, MAC: mac, Vendor: vendors.Vendor(mac.String())}
			}
		}
	}()

	if err := probeSubnet(ctx, handle, ifi, localIP, localNet, cfg); err != nil {
		close(stop)
		<-collected
		return nil, err
	}

	// Let stragglers answer before tearing down the reader.
	select {
	case <-ctx.Done():
	case <-time.After(cfg.IdleWait):
	}
	close(stop)
	<-collected

	hosts := make([]Host, 0, len(found))
	for _, h := range found {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return bytes.Compare(hosts[i].IP, hosts[j].IP) < 0 })
	return hosts, nil
}

// probeSubnet walks every usable address in the subnet and sends one ARP
// request each, skipping the network, broadcast and local addresses.
func probeSubnet(ctx context.Context, handle *pcap.Handle, ifi *net.Interface, localIP net.IP, subnet *net.IPNet, cfg ScanConfig) error {
	mask := subnet.Mask

	network := make(net.IP, len(localIP))
	copy(network, localIP)
	for i := range network {
		network[i] &= mask[i]
	}
	broadcast := make(net.IP, len(network))
	copy(broadcast, network)
	for i := range broadcast {
		broadcast[i] |= ^mask[i]
	}

	ticker := time.NewTicker(cfg.RequestInterval)
	defer ticker.Stop()

	sent := 0
	for ip := nextIP(network); subnet.Contains(ip); ip = nextIP(ip) {
		if cfg.MaxHosts > 0 && sent >= cfg.MaxHosts {
			break
		}
		if ip.Equal(broadcast) || ip.Equal(localIP) {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := sendRequest(handle, ifi, localIP, ip); err != nil {
			continue
		}
		sent++
	}
	return nil
}

func interfaceSubnet(ifi *net.Interface) (net.IP, *net.IPNet, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, nil, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4, &net.IPNet{IP: ip4.Mask(ipnet.Mask), Mask: ipnet.Mask[len(ipnet.Mask)-4:]}, nil
			}
		}
	}
	return nil, nil, errors.New("no IPv4 address on interface")
}

func nextIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] > 0 {
			break
		}
	}
	return out
}

func sendRequest(handle *pcap.Handle, ifi *net.Interface, srcIP, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       ifi.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(ifi.HardwareAddr),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return handle.WritePacketData(buf.Bytes())
}
