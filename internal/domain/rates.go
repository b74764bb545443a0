package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RateType string

const (
	RateNightly RateType = "NIGHTLY"
	RateWeekly  RateType = "WEEKLY"
	RateMonthly RateType = "MONTHLY"
)

type PricingTier string

const (
	TierStandard  PricingTier = "STANDARD"
	TierCorporate PricingTier = "CORPORATE"
	TierSeasonal  PricingTier = "SEASONAL"
)

const (
	// LongStayNights is the stay length from which pricing is withheld pending a manual quote.
	LongStayNights = 30
	// WeeklyNights is the stay length from which a WEEKLY rate is preferred.
	WeeklyNights = 7
)

// ReasonLongStay is reported with requiresQuote for stays of LongStayNights or more.
const ReasonLongStay = "LONG_STAY"

// Rate is one RoomPricing entry for a room or a whole unit.
type Rate struct {
	ID           string
	Target       Target
	RateType     RateType
	PricingTier  PricingTier
	MinNights    int
	MaxNights    *int
	Price        decimal.Decimal
	TaxInclusive bool
	ValidFrom    time.Time
	ValidTo      *time.Time
}

// ActiveOn reports whether the rate's validity window covers t.
func (r Rate) ActiveOn(t time.Time) bool {
	if r.ValidFrom.After(t) {
		return false
	}
	return r.ValidTo == nil || !r.ValidTo.Before(t)
}

type RateSelection struct {
	Rate          *Rate
	RequiresQuote bool
	Reason        string
}

// SelectRate picks the pricing entry for a stay. The first matching candidate wins, so
// callers pass candidates in preference order.
//
// A WEEKLY candidate whose minNights is not met yields no rate at all; there is no
// fallback to NIGHTLY once a weekly entry exists.
func SelectRate(candidates []Rate, nights int, tier PricingTier) RateSelection {
	if nights >= LongStayNights {
		return RateSelection{RequiresQuote: true, Reason: ReasonLongStay}
	}
	if tier == "" {
		tier = TierStandard
	}

	tiered := filterTier(candidates, tier)
	if len(tiered) == 0 && tier != TierStandard {
		tiered = filterTier(candidates, TierStandard)
	}

	if nights >= WeeklyNights {
		if weekly := findRateType(tiered, RateWeekly); weekly != nil {
			if weekly.MinNights > nights {
				return RateSelection{}
			}
			return RateSelection{Rate: weekly}
		}
	}

	if nightly := findRateType(tiered, RateNightly); nightly != nil {
		if nightly.MinNights > nights {
			return RateSelection{}
		}
		return RateSelection{Rate: nightly}
	}
	return RateSelection{}
}

func filterTier(rates []Rate, tier PricingTier) []Rate {
	var out []Rate
	for _, r := range rates {
		if r.PricingTier == tier {
			out = append(out, r)
		}
	}
	return out
}

func findRateType(rates []Rate, t RateType) *Rate {
	for i := range rates {
		if rates[i].RateType == t {
			r := rates[i]
			return &r
		}
	}
	return nil
}
