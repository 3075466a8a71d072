package domain

import "github.com/shopspring/decimal"

// LatLng is a geographic coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// DonationArc is one visual edge from a simulated donor origin to an aid region.
type DonationArc struct {
	ID         string
	From       LatLng
	To         LatLng
	DonorName  string
	Amount     decimal.Decimal
	Region     string
	ImpactType string
	IsNew      bool
}

// ImpactSite rolls up the donations observed for one region.
type ImpactSite struct {
	Region string
	Coord  LatLng
	Total  decimal.Decimal
	Count  int
}
