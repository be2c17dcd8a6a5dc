package spoofer

import (
	"fmt"
	"os/exec"
	"runtime"
)

// EnableIPForwarding turns on kernel IP forwarding so traffic relayed
// through this host keeps flowing while the spoof is active. Linux only;
// macOS blocks the toggle via SIP.
func EnableIPForwarding() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("ip forwarding not supported on %s", runtime.GOOS)
	}
	if out, err := exec.Command("sysctl", "-w", "net.ipv4.ip_forward=1").CombinedOutput(); err != nil {
		return fmt.Errorf("enable ip forwarding: %v (%s)", err, out)
	}
	return nil
}

// DisableIPForwarding reverts EnableIPForwarding. Teardown is best effort:
// non-Linux platforms are a no-op so cleanup never fails the run.
func DisableIPForwarding() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	if out, err := exec.Command("sysctl", "-w", "net.ipv4.ip_forward=0").CombinedOutput(); err != nil {
		return fmt.Errorf("disable ip forwarding: %v (%s)", err, out)
	}
	return nil
}
