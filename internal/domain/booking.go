package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusCheckedIn  BookingStatus = "CHECKED_IN"
	StatusCheckedOut BookingStatus = "CHECKED_OUT"
	StatusCancelled  BookingStatus = "CANCELLED"
)

// ActiveStatuses are the statuses whose bookings still occupy inventory.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCheckedOut},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled:
		return true
	}
	return false
}

func (s BookingStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Transition validates a move through the status table.
func Transition(from, to BookingStatus) error {
	if !from.CanTransitionTo(to) {
		return Errorf(CodeInvalidStatusTransition, "cannot transition from %s to %s", from, to)
	}
	return nil
}

// CanCancel is narrower than the table: guests may only cancel before check-in.
func (s BookingStatus) CanCancel() bool {
	return s == StatusPending || s == StatusConfirmed
}

type BookingType string

const (
	BookingRoom      BookingType = "ROOM"
	BookingUnit      BookingType = "UNIT"
	BookingMultiRoom BookingType = "MULTI_ROOM"
	BookingLongStay  BookingType = "LONG_STAY"
)

// DeriveBookingType applies LONG_STAY, then MULTI_ROOM, then the single item's level.
func DeriveBookingType(nights int, items []Target) BookingType {
	switch {
	case nights >= WeeklyNights:
		return BookingLongStay
	case len(items) > 1:
		return BookingMultiRoom
	case len(items) == 1 && items[0].Type == TargetUnit:
		return BookingUnit
	default:
		return BookingRoom
	}
}

type Role string

const (
	RoleGuest   Role = "GUEST"
	RoleStaff   Role = "STAFF"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// CanManageBookings covers roles allowed to act on other users' bookings.
func (r Role) CanManageBookings() bool {
	return r == RoleAdmin || r == RoleManager
}

// Elevated roles may drive the generic status workflow.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleStaff
}

type BookingItem struct {
	ID            string          `json:"id"`
	BookingID     string          `json:"bookingId"`
	Target        Target          `json:"target"`
	PricingID     string          `json:"pricingId,omitempty"`
	RateType      RateType        `json:"rateType"`
	PricePerNight decimal.Decimal `json:"pricePerNight"`
	Nights        int             `json:"nights"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Label         string          `json:"label"`
}

type Booking struct {
	ID             string          `json:"id"`
	BookingRef     string          `json:"bookingRef"`
	UserID         string          `json:"userId"`
	BookingType    BookingType     `json:"bookingType"`
	CheckIn        time.Time       `json:"checkIn"`
	CheckOut       time.Time       `json:"checkOut"`
	Nights         int             `json:"nights"`
	Guests         int             `json:"guests"`
	Status         BookingStatus   `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	CouponID       *string         `json:"couponId,omitempty"`
	CouponCode     *string         `json:"couponCode,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	Items          []BookingItem   `json:"items"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (b Booking) Range() DateRange {
	return DateRange{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// FormatBookingRef renders PREFIX-YEAR-0001 style references.
func FormatBookingRef(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}
