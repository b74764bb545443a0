package main

import (
	"time"

	"github.com/shopspring/decimal"

	"casa_booking/internal/domain"
	"casa_booking/internal/storage/memory"
)

// seedDemo gives STORE=memory something to search: one property, two units.
func seedDemo(st *memory.Store) {
	from := time.Date(time.Now().UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	st.AddProperty(domain.Property{ID: "demo-p1", Name: "Casa Demo", City: "Lisbon", IsActive: true})
	st.AddUnit(domain.Unit{ID: "demo-u1", PropertyID: "demo-p1", UnitNumber: "1A", Floor: 1, IsActive: true, Rooms: []domain.Room{
		{ID: "demo-r1", RoomNumber: "101", MaxOccupancy: 1, HasAC: true, IsActive: true},
		{ID: "demo-r2", RoomNumber: "102", MaxOccupancy: 2, IsActive: true},
	}}, domain.Amenity{Name: "Kitchen"}, domain.Amenity{Name: "Wi-Fi"})
	st.AddUnit(domain.Unit{ID: "demo-u2", PropertyID: "demo-p1", UnitNumber: "2A", Floor: 2, IsActive: true, Rooms: []domain.Room{
		{ID: "demo-r3", RoomNumber: "201", MaxOccupancy: 2, HasAC: true, IsActive: true},
	}})

	prices := map[domain.Target]int64{
		domain.RoomTarget("demo-r1"): 50,
		domain.RoomTarget("demo-r2"): 80,
		domain.RoomTarget("demo-r3"): 90,
		domain.UnitTarget("demo-u1"): 120,
		domain.UnitTarget("demo-u2"): 85,
	}
	for t, p := range prices {
		st.AddRate(domain.Rate{
			ID: "demo-rate-" + t.ID, Target: t, RateType: domain.RateNightly, PricingTier: domain.TierStandard,
			MinNights: 1, Price: decimal.NewFromInt(p), ValidFrom: from,
		})
	}
	st.AddTax(domain.Tax{ID: "demo-vat", Name: "VAT", Rate: decimal.NewFromInt(10), TaxType: domain.TaxPercentage, AppliesTo: domain.TaxAppliesAll, IsActive: true})
	st.AddCoupon(domain.Coupon{ID: "demo-c1", Code: "WELCOME10", Name: "Welcome", DiscountType: domain.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true})
}
