package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// StatusVerified is the only status a donation can hold.
	StatusVerified = "Verified"
	// AnonymousDonorName replaces the donor label on anonymous donations.
	AnonymousDonorName = "Anonymous"
	// DefaultDonorName labels non-anonymous donations submitted without a name.
	DefaultDonorName = "Donor"
	// DefaultImpactType is used when no impact category is supplied.
	DefaultImpactType = "General"
)

// AmountScale is the number of decimal places an amount may carry.
const AmountScale = 2

// MaxAmount is the exclusive upper bound of a single donation (numeric(14,2)).
var MaxAmount = decimal.New(1, 12)

// ValidAmount reports whether amount is positive, has at most AmountScale
// decimal places and stays below MaxAmount.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.Equal(amount.Truncate(AmountScale)) &&
		amount.LessThan(MaxAmount)
}

// ImpactTypes lists the categories offered on the donation form. Other values are accepted.
var ImpactTypes = []string{"Food Aid", "Medical Supplies", "Clean Water", "Shelter", "Education"}

// Donation represents one immutable contribution record in the ledger.
type Donation struct {
	ID            string
	Seq           int64
	Amount        decimal.Decimal
	DonorID       *string
	DonorName     string
	Region        string
	ImpactType    string
	Anonymous     bool
	Status        string
	OriginCountry string
	CreatedAt     time.Time
}

// Public returns the copy of the donation that may be shown to other users.
// Anonymous donations never expose the donor identifier or the supplied name.
func (d Donation) Public() Donation {
	if d.Anonymous {
		d.DonorID = nil
		d.DonorName = AnonymousDonorName
	}
	return d
}

// DonationInput carries a donation submission before it is resolved and persisted.
type DonationInput struct {
	Amount        decimal.Decimal
	Region        string
	ImpactType    string
	DonorName     string
	Anonymous     bool
	DonorID       string
	OriginCountry string
}
