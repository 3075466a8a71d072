package geoip

import (
	"errors"
	"testing"
)

func TestOpenWithoutPathDisablesLookups(t *testing.T) {
	r, err := Open("  ")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver, got %#v", r)
	}
	if _, err := r.CountryCode("203.0.113.4"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CountryCode error = %v, want ErrUnavailable", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestRememberResetsAtCapacity(t *testing.T) {
	r := &Resolver{cache: make(map[string]string), capacity: 2}
	r.remember("198.51.100.1", "CA")
	r.remember("198.51.100.2", "GB")
	r.remember("198.51.100.3", "SD")

	if _, ok := r.cached("198.51.100.1"); ok {
		t.Fatal("expected cache reset once full")
	}
	if code, ok := r.cached("198.51.100.3"); !ok || code != "SD" {
		t.Fatalf("cached = %q %v, want SD true", code, ok)
	}
}
