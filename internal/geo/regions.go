package geo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

// Region is an aid destination and its representative coordinate.
type Region struct {
	Name  string        `yaml:"name" json:"name"`
	Coord domain.LatLng `yaml:"coord" json:"coord"`
}

// Origin is one entry of the simulated donor-origin pool.
type Origin struct {
	Label string        `yaml:"label" json:"label"`
	Coord domain.LatLng `yaml:"coord" json:"coord"`
}

// DefaultRegionName receives donations whose region is unknown.
const DefaultRegionName = "Palestine"

var defaultRegions = []Region{
	{Name: "Palestine", Coord: domain.LatLng{Lat: 31.5, Lng: 34.47}},
	{Name: "Sudan", Coord: domain.LatLng{Lat: 15.5, Lng: 32.56}},
	{Name: "Congo", Coord: domain.LatLng{Lat: -4.04, Lng: 21.76}},
	{Name: "Syria", Coord: domain.LatLng{Lat: 34.80, Lng: 38.99}},
	{Name: "Lebanon", Coord: domain.LatLng{Lat: 33.85, Lng: 35.86}},
	{Name: "Pakistan", Coord: domain.LatLng{Lat: 30.38, Lng: 69.35}},
	{Name: "Afghanistan", Coord: domain.LatLng{Lat: 33.94, Lng: 67.71}},
}

// The origin pool does not describe where donors really are. Arcs pick an entry by
// feed rank so the map shows a stable spread of sources.
var defaultOrigins = []Origin{
	{Label: "Waterloo", Coord: domain.LatLng{Lat: 43.46, Lng: -80.52}},
	{Label: "New York", Coord: domain.LatLng{Lat: 40.71, Lng: -74.01}},
	{Label: "London", Coord: domain.LatLng{Lat: 51.51, Lng: -0.13}},
	{Label: "Paris", Coord: domain.LatLng{Lat: 48.86, Lng: 2.35}},
	{Label: "Tokyo", Coord: domain.LatLng{Lat: 35.68, Lng: 139.69}},
	{Label: "Singapore", Coord: domain.LatLng{Lat: 1.35, Lng: 103.82}},
	{Label: "Sydney", Coord: domain.LatLng{Lat: -33.87, Lng: 151.21}},
	{Label: "Dubai", Coord: domain.LatLng{Lat: 25.20, Lng: 55.27}},
	{Label: "Berlin", Coord: domain.LatLng{Lat: 52.52, Lng: 13.41}},
	{Label: "San Francisco", Coord: domain.LatLng{Lat: 37.77, Lng: -122.42}},
}

// Directory resolves region names to coordinates and hands out donor origins.
// It is immutable after construction and safe for concurrent use.
type Directory struct {
	regions       []Region
	index         map[string]int
	origins       []Origin
	defaultRegion int
}

// DefaultDirectory returns the built-in region catalogue and origin pool.
func DefaultDirectory() *Directory {
	d, err := NewDirectory(defaultRegions, defaultOrigins, DefaultRegionName)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDirectory validates and indexes the given regions and origins.
func NewDirectory(regions []Region, origins []Origin, defaultRegion string) (*Directory, error) {
	if len(regions) == 0 {
		return nil, errors.New("geo: at least one region is required")
	}
	if len(origins) == 0 {
		return nil, errors.New("geo: at least one donor origin is required")
	}
	d := &Directory{
		regions: make([]Region, 0, len(regions)),
		index:   make(map[string]int, len(regions)),
		origins: append([]Origin(nil), origins...),
	}
	for _, r := range regions {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, errors.New("geo: region name is required")
		}
		key := normalizeName(name)
		if _, dup := d.index[key]; dup {
			return nil, fmt.Errorf("geo: duplicate region %q", name)
		}
		d.index[key] = len(d.regions)
		d.regions = append(d.regions, Region{Name: name, Coord: r.Coord})
	}
	idx, ok := d.index[normalizeName(defaultRegion)]
	if !ok {
		return nil, fmt.Errorf("geo: default region %q is not in the directory", defaultRegion)
	}
	d.defaultRegion = idx
	return d, nil
}

type directoryFile struct {
	DefaultRegion string   `yaml:"default_region"`
	Regions       []Region `yaml:"regions"`
	Origins       []Origin `yaml:"origins"`
}

// LoadDirectory reads a YAML region file. Sections left out of the file keep the
// built-in values.
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geo: read %s: %w", path, err)
	}
	var file directoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("geo: decode %s: %w", path, err)
	}
	regions := file.Regions
	if len(regions) == 0 {
		regions = defaultRegions
	}
	origins := file.Origins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	defaultRegion := strings.TrimSpace(file.DefaultRegion)
	if defaultRegion == "" {
		defaultRegion = DefaultRegionName
	}
	return NewDirectory(regions, origins, defaultRegion)
}

// Lookup finds a region by name, ignoring case and surrounding whitespace.
func (d *Directory) Lookup(name string) (Region, bool) {
	idx, ok := d.index[normalizeName(name)]
	if !ok {
		return Region{}, false
	}
	return d.regions[idx], true
}

// Resolve returns the named region, or the default region when the name is unknown.
func (d *Directory) Resolve(name string) Region {
	if r, ok := d.Lookup(name); ok {
		return r
	}
	return d.DefaultRegion()
}

// DefaultRegion returns the region used for unknown names.
func (d *Directory) DefaultRegion() Region {
	return d.regions[d.defaultRegion]
}

// Origin returns the donor-origin coordinate for a feed rank.
func (d *Directory) Origin(rank int) domain.LatLng {
	n := len(d.origins)
	idx := rank % n
	if idx < 0 {
		idx += n
	}
	return d.origins[idx].Coord
}

// Regions returns the catalogue in declaration order.
func (d *Directory) Regions() []Region {
	return append([]Region(nil), d.regions...)
}

// Origins returns the donor-origin pool in rank order.
func (d *Directory) Origins() []Origin {
	return append([]Origin(nil), d.origins...)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
