package handlers

import (
	"time"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

type donationDTO struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	Amount        string    `json:"amount"`
	DonorName     string    `json:"donor_name"`
	Region        string    `json:"region"`
	ImpactType    string    `json:"impact_type"`
	Anonymous     bool      `json:"anonymous"`
	Status        string    `json:"status"`
	OriginCountry string    `json:"origin_country,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// toDonationDTO never carries the donor identifier.
func toDonationDTO(d domain.Donation) donationDTO {
	return donationDTO{
		ID:            d.ID,
		Seq:           d.Seq,
		Amount:        d.Amount.StringFixed(2),
		DonorName:     d.DonorName,
		Region:        d.Region,
		ImpactType:    d.ImpactType,
		Anonymous:     d.Anonymous,
		Status:        d.Status,
		OriginCountry: d.OriginCountry,
		CreatedAt:     d.CreatedAt,
	}
}

func toDonationDTOs(items []domain.Donation) []donationDTO {
	out := make([]donationDTO, 0, len(items))
	for _, d := range items {
		out = append(out, toDonationDTO(d))
	}
	return out
}

type statsDTO struct {
	TotalDonations   string       `json:"total_donations"`
	UniqueDonors     int64        `json:"unique_donors"`
	FundsTransferred string       `json:"funds_transferred"`
	UpdatedAt        *time.Time   `json:"updated_at,omitempty"`
	State            stream.State `json:"state"`
	Version          int64        `json:"version"`
}

func toStatsDTO(s stream.AggregateSnapshot) statsDTO {
	dto := statsDTO{
		TotalDonations:   s.Counters.TotalDonations.StringFixed(2),
		UniqueDonors:     s.Counters.UniqueDonors,
		FundsTransferred: s.Counters.FundsTransferred.StringFixed(2),
		State:            s.State,
		Version:          s.Version,
	}
	if !s.Counters.UpdatedAt.IsZero() {
		at := s.Counters.UpdatedAt
		dto.UpdatedAt = &at
	}
	return dto
}

type feedDTO struct {
	Items   []donationDTO `json:"items"`
	State   stream.State  `json:"state"`
	Version int64         `json:"version"`
}

func toFeedDTO(s stream.FeedSnapshot) feedDTO {
	return feedDTO{Items: toDonationDTOs(s.Donations), State: s.State, Version: s.Version}
}

type ledgerDTO struct {
	Items   []donationDTO `json:"items"`
	Total   string        `json:"total"`
	Count   int           `json:"count"`
	State   stream.State  `json:"state"`
	Version int64         `json:"version"`
}

func toLedgerDTO(s stream.LedgerSnapshot) ledgerDTO {
	return ledgerDTO{
		Items:   toDonationDTOs(s.Donations),
		Total:   s.Total.StringFixed(2),
		Count:   s.Count,
		State:   s.State,
		Version: s.Version,
	}
}
