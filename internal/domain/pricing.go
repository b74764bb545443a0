package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type TaxType string

const (
	TaxPercentage TaxType = "PERCENTAGE"
	TaxFixed      TaxType = "FIXED"
)

// TaxAppliesAll matches every booking type.
const TaxAppliesAll = "ALL"

// Tax is externally owned reference data, fetched fresh for every operation.
type Tax struct {
	ID        string          `json:"-"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	TaxType   TaxType         `json:"taxType"`
	AppliesTo string          `json:"-"`
	IsActive  bool            `json:"-"`
}

func (t Tax) Applies(bt BookingType) bool {
	return t.AppliesTo == TaxAppliesAll || t.AppliesTo == string(bt)
}

// ComputeTax sums the applicable taxes on base. Percentages are each taken on base,
// never on one another; FIXED taxes add their rate once.
func ComputeTax(taxes []Tax, bt BookingType, base decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, t := range taxes {
		if !t.IsActive || !t.Applies(bt) {
			continue
		}
		switch t.TaxType {
		case TaxPercentage:
			total = total.Add(base.Mul(t.Rate).Div(hundred))
		default:
			total = total.Add(t.Rate)
		}
	}
	return total.Round(2)
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Coupon is the collaborator's record; the core only consumes a CouponResult.
type Coupon struct {
	ID            string
	Code          string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MaxUses       *int
	UsedCount     int
	MinNights     *int
	MinAmount     *decimal.Decimal
	ValidFrom     *time.Time
	ValidTo       *time.Time
	IsActive      bool
}

type CouponResult struct {
	CouponID       string          `json:"couponId"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Validate checks redeemability for a stay and computes the discount.
// Fixed discounts are capped at subtotal.
func (c Coupon) Validate(now time.Time, nights int, subtotal decimal.Decimal) (CouponResult, error) {
	if !c.IsActive {
		return CouponResult{}, Errorf(CodeCouponInactive, "coupon is inactive")
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return CouponResult{}, Errorf(CodeCouponExpired, "coupon has expired")
	}
	if c.MaxUses != nil && *c.MaxUses > 0 && c.UsedCount >= *c.MaxUses {
		return CouponResult{}, Errorf(CodeCouponExhausted, "coupon usage limit reached")
	}
	if c.MinNights != nil && nights < *c.MinNights {
		return CouponResult{}, Errorf(CodeCouponMinNights, "minimum %d nights required", *c.MinNights)
	}
	if c.MinAmount != nil && subtotal.LessThan(*c.MinAmount) {
		return CouponResult{}, Errorf(CodeCouponMinAmount, "minimum amount %s required", c.MinAmount.StringFixed(2))
	}

	var discount decimal.Decimal
	if c.DiscountType == DiscountPercentage {
		discount = subtotal.Mul(c.DiscountValue).Div(hundred)
	} else {
		discount = decimal.Min(c.DiscountValue, subtotal)
	}
	return CouponResult{
		CouponID:       c.ID,
		Code:           c.Code,
		Name:           c.Name,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.DiscountValue,
		DiscountAmount: decimal.Min(discount.Round(2), subtotal),
	}, nil
}
