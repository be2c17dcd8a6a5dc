package oui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UnknownVendor is returned when no prefix entry matches.
const UnknownVendor = "Unknown Vendor"

// Resolver maps hardware addresses to vendor names using an IEEE OUI
// prefix table in Wireshark manuf format. Lookups for full addresses are
// memoized in an LRU so a busy capture resolves each device once.
type Resolver struct {
	prefixes map[string]string
	cache    *lru.Cache[string, string]
}

// builtin covers the vendors that show up in virtually every lab capture,
// so the resolver is useful even without a manuf file on disk.
var builtin = map[string]string{
	"00:00:0c": "Cisco Systems",
	"00:50:56": "VMware",
	"00:1a:11": "Google",
	"3c:22:fb": "Apple",
	"b8:27:eb": "Raspberry Pi Foundation",
	"dc:a6:32": "Raspberry Pi Trading",
	"e4:5f:01": "Raspberry Pi Trading",
	"f0:9f:c2": "Ubiquiti Networks",
	"00:15:5d": "Microsoft (Hyper-V)",
	"52:54:00": "QEMU/KVM",
	"08:00:27": "Oracle VirtualBox",
	"00:1b:21": "Intel Corporate",
}

// NewResolver builds a resolver. manufPath may be empty, in which case only
// the built-in table is used. A missing or unreadable file at a non-empty
// path is an error: the caller asked for that database.
func NewResolver(manufPath string) (*Resolver, error) {
	r := &Resolver{prefixes: make(map[string]string, len(builtin))}
	for k, v := range builtin {
		r.prefixes[k] = v
	}

	if manufPath != "" {
		if err := r.loadManuf(manufPath); err != nil {
			return nil, fmt.Errorf("oui: load %s: %w", manufPath, err)
		}
	}

	cache, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// loadManuf parses the Wireshark manuf format: "prefix<TAB>short<TAB>long".
// Only plain 24-bit prefixes are honored; masked entries (e.g. /28) and
// malformed lines are skipped.
func (r *Resolver) loadManuf(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		prefix := strings.ToLower(strings.TrimSpace(fields[0]))
		if strings.Contains(prefix, "/") || strings.Count(prefix, ":") != 2 {
			continue
		}
		vendor := strings.TrimSpace(fields[len(fields)-1])
		if vendor == "" {
			vendor = strings.TrimSpace(fields[1])
		}
		if vendor != "" {
			r.prefixes[prefix] = vendor
		}
	}
	return scanner.Err()
}

// Vendor resolves a hardware address to a vendor name, falling back to
// UnknownVendor. Safe for addresses in any case; separators must be colons.
func (r *Resolver) Vendor(mac string) string {
	mac = strings.ToLower(mac)
	if v, ok := r.cache.Get(mac); ok {
		return v
	}

	vendor := UnknownVendor
	if len(mac) >= 8 {
		if v, ok := r.prefixes[mac[:8]]; ok {
			vendor = v
		}
	}
	r.cache.Add(mac, vendor)
	return vendor
}
