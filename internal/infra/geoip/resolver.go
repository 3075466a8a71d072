// Package geoip stamps donations with the donor's country using a MaxMind
// GeoIP2/GeoLite2 country database.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no database is loaded.
var ErrUnavailable = errors.New("geoip resolver unavailable")

const defaultCacheSize = 4096

// Resolver looks up ISO country codes and remembers recent answers. A nil
// *Resolver is valid and always reports ErrUnavailable.
type Resolver struct {
	reader *geoip2.Reader

	mu       sync.Mutex
	cache    map[string]string
	capacity int
}

// Open loads the database at path. An empty path disables lookups and returns
// a nil resolver.
func Open(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{
		reader:   reader,
		cache:    make(map[string]string),
		capacity: defaultCacheSize,
	}, nil
}

// CountryCode returns the upper-case ISO 3166-1 code for ip, or "" when the
// database has no country for it.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	key := parsed.String()
	if code, ok := r.cached(key); ok {
		return code, nil
	}

	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	code := ""
	if record != nil {
		code = strings.ToUpper(record.Country.IsoCode)
	}
	r.remember(key, code)
	return code, nil
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.cache[key]
	return code, ok
}

// remember resets the cache once it reaches capacity.
func (r *Resolver) remember(key, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cache) >= r.capacity {
		clear(r.cache)
	}
	r.cache[key] = code
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
