package discovery

import "net"

// Host is one device that answered the ARP sweep.
type Host struct {
	IP     net.IP
	MAC    net.HardwareAddr
	Vendor string
}
