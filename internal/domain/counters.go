package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalCountersID identifies the single aggregate counters record.
const GlobalCountersID = "global"

// AggregateCounters is the global summary kept in step with the donation ledger.
// UniqueDonors counts committed donations, not distinct donor identities.
type AggregateCounters struct {
	TotalDonations   decimal.Decimal
	UniqueDonors     int64
	FundsTransferred decimal.Decimal
	Version          int64
	UpdatedAt        time.Time
}

// Apply returns the counters after recording one donation of the given amount.
func (c AggregateCounters) Apply(amount decimal.Decimal) AggregateCounters {
	c.TotalDonations = c.TotalDonations.Add(amount)
	c.UniqueDonors++
	c.Version++
	return c
}
