package oui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinPrefixes(t *testing.T) {
	r, err := NewResolver("")
	if err != nil {
		t.Fatal(err)
	}
	if v := r.Vendor("b8:27:eb:12:34:56"); v != "Raspberry Pi Foundation" {
		t.Errorf("vendor = %q", v)
	}
	if v := r.Vendor("B8:27:EB:12:34:56"); v != "Raspberry Pi Foundation" {
		t.Errorf("uppercase lookup = %q", v)
	}
	if v := r.Vendor("de:ad:be:ef:00:01"); v != UnknownVendor {
		t.Errorf("unknown prefix = %q", v)
	}
	if v := r.Vendor(""); v != UnknownVendor {
		t.Errorf("empty mac = %q", v)
	}
}

func TestManufFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manuf")
	content := "# comment line\n" +
		"00:11:22\tAcme\tAcme Networks Inc\n" +
		"00:11:23/28\tMasked\tShould be skipped\n" +
		"malformed line without tabs\n" +
		"aa:bb:cc\tShortOnly\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewResolver(path)
	if err != nil {
		t.Fatal(err)
	}
	if v := r.Vendor("00:11:22:00:00:01"); v != "Acme Networks Inc" {
		t.Errorf("vendor = %q, want long name", v)
	}
	if v := r.Vendor("aa:bb:cc:00:00:01"); v != "ShortOnly" {
		t.Errorf("vendor = %q, want short name fallback", v)
	}
	if v := r.Vendor("00:11:23:00:00:01"); v != UnknownVendor {
		t.Errorf("masked prefix resolved to %q", v)
	}
}

func TestMissingManufFileIsFatal(t *testing.T) {
	if _, err := NewResolver("/nonexistent/manuf"); err == nil {
		t.Error("expected error for missing manuf file")
	}
}

func TestLookupIsMemoized(t *testing.T) {
	r, err := NewResolver("")
	if err != nil {
		t.Fatal(err)
	}
	mac := "b8:27:eb:00:00:99"
	first := r.Vendor(mac)
	// Mutate the table; a cached address must keep its original answer.
	r.prefixes["b8:27:eb"] = "Changed"
	if v := r.Vendor(mac); v != first {
		t.Errorf("cache miss: %q vs %q", v, first)
	}
}
