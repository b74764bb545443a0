package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casa_booking/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func TestComputeTax(t *testing.T) {
	taxes := []domain.Tax{
		{Name: "VAT", Rate: dec("10"), TaxType: domain.TaxPercentage, AppliesTo: "ALL", IsActive: true},
		{Name: "City", Rate: dec("5"), TaxType: domain.TaxPercentage, AppliesTo: "ROOM", IsActive: true},
		{Name: "Cleaning", Rate: dec("25"), TaxType: domain.TaxFixed, AppliesTo: "UNIT", IsActive: true},
		{Name: "Old", Rate: dec("50"), TaxType: domain.TaxPercentage, AppliesTo: "ALL", IsActive: false},
	}

	// 10% + 5% of 200, additive.
	assert.True(t, dec("30").Equal(domain.ComputeTax(taxes, domain.BookingRoom, dec("200"))))
	// 10% of 200 + 25 fixed once.
	assert.True(t, dec("45").Equal(domain.ComputeTax(taxes, domain.BookingUnit, dec("200"))))
	assert.True(t, decimal.Zero.Equal(domain.ComputeTax(nil, domain.BookingRoom, dec("200"))))
}

func TestCoupon_Validate(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	base := domain.Coupon{
		ID: "c1", Code: "SPRING", Name: "Spring",
		DiscountType: domain.DiscountPercentage, DiscountValue: dec("10"),
		IsActive: true,
	}

	res, err := base.Validate(now, 3, dec("300"))
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(res.DiscountAmount))
	assert.Equal(t, "c1", res.CouponID)

	fixed := base
	fixed.DiscountType = domain.DiscountFixed
	fixed.DiscountValue = dec("500")
	res, err = fixed.Validate(now, 3, dec("300"))
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(res.DiscountAmount), "fixed discount capped at subtotal")

	cases := []struct {
		name   string
		mutate func(c *domain.Coupon)
		want   error
	}{
		{"inactive", func(c *domain.Coupon) { c.IsActive = false }, domain.ErrCouponInactive},
		{"expired", func(c *domain.Coupon) { c.ValidTo = ptr(now.Add(-time.Hour)) }, domain.ErrCouponExpired},
		{"exhausted", func(c *domain.Coupon) { c.MaxUses = ptr(5); c.UsedCount = 5 }, domain.ErrCouponExhausted},
		{"min nights", func(c *domain.Coupon) { c.MinNights = ptr(4) }, domain.ErrCouponMinNights},
		{"min amount", func(c *domain.Coupon) { c.MinAmount = ptr(dec("500")) }, domain.ErrCouponMinAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			_, err := c.Validate(now, 3, dec("300"))
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}
